// core/encoder/encoder.go

// Package encoder defines the capability interface the pipeline uses to turn
// batches of subword ids into per-token hidden states. The concrete model
// (weights, runtime, device) lives behind this interface; the core holds no
// state about its internals.
package encoder

import "context"

// Encoder maps a padded batch of subword-id sequences to per-token hidden
// vectors [batch][maxLen][dim] at the requested layer. mask marks real (1)
// vs pad (0) positions. It is the pipeline's only blocking external call.
type Encoder interface {
	Encode(ctx context.Context, ids, mask [][]int64, layer int) ([][][]float32, error)
}

// PadBatch right-pads seqs to the batch's max length with pad and returns
// the padded ids alongside the matching attention mask.
func PadBatch(seqs [][]int64, pad int64) (ids, mask [][]int64) {
	maxLen := 0
	for _, s := range seqs {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	ids = make([][]int64, len(seqs))
	mask = make([][]int64, len(seqs))
	for i, s := range seqs {
		row := make([]int64, maxLen)
		m := make([]int64, maxLen)
		copy(row, s)
		for j := len(s); j < maxLen; j++ {
			row[j] = pad
		}
		for j := range s {
			m[j] = 1
		}
		ids[i] = row
		mask[i] = m
	}
	return ids, mask
}
