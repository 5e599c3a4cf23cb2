// core/bitext/offsets.go
package bitext

import (
	"bufio"
	"io"
	"os"
)

// FindOffsets splits path into numWorkers byte-aligned shards and returns the
// start offset of each shard. Shard i covers [offsets[i], offsets[i+1]); the
// last shard runs to EOF. Every offset except the first lies at the start of
// a line, so no line is ever split across two shards.
//
// numWorkers <= 1 yields the trivial single-shard plan [0]. An empty file
// yields numWorkers empty shards rather than an error.
func FindOffsets(path string, numWorkers int) ([]int64, error) {
	if numWorkers <= 1 {
		return []int64{0}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()

	offsets := make([]int64, 1, numWorkers)
	offsets[0] = 0
	chunk := size / int64(numWorkers)
	for i := 1; i < numWorkers; i++ {
		pos := snapToRuneStart(f, chunk*int64(i), size)
		off, err := nextLineStart(f, pos, size)
		if err != nil {
			return nil, err
		}
		if prev := offsets[len(offsets)-1]; off < prev {
			off = prev // tiny files: later shards collapse to empty
		}
		offsets = append(offsets, off)
	}
	return offsets, nil
}

// snapToRuneStart decrements pos while it points into the middle of a
// multi-byte UTF-8 character, so the subsequent line scan never starts on a
// continuation byte.
func snapToRuneStart(f *os.File, pos, size int64) int64 {
	var b [1]byte
	for pos > 0 && pos < size {
		if _, err := f.ReadAt(b[:], pos); err != nil {
			break
		}
		if b[0]&0xC0 != 0x80 { // not a continuation byte
			break
		}
		pos--
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// nextLineStart reads forward from pos and returns the offset of the first
// byte after the next line terminator (or EOF).
func nextLineStart(f *os.File, pos, size int64) (int64, error) {
	if pos >= size {
		return size, nil
	}
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return 0, err
	}
	br := bufio.NewReader(f)
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return 0, err
	}
	return pos + int64(len(line)), nil
}
