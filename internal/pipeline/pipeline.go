// internal/pipeline/pipeline.go
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"walign/internal/cmdutil"
	"walign/internal/output"
	"walign/internal/writers"

	"walign-core/align"
	"walign-core/bitext"
	"walign-core/encoder"
)

// Config controls the extraction pipeline.
type Config struct {
	Input     string
	Workers   int // shard count; one worker goroutine per shard (>=1)
	BatchSize int // lines per encoder invocation
	Layer     int // encoder layer for alignment extraction
	Quiet     bool
}

// Outputs names the destination file per output kind; Prob and Word are
// optional (empty = disabled). Enabled kinds stay in lockstep: every input
// line yields exactly one record in every enabled stream, in input order.
type Outputs struct {
	Align string
	Prob  string
	Word  string
}

// Run shards the input, processes each shard with its own worker (decode →
// batch → encode → extract → format), and merges per-worker streams in shard
// order. The first error cancels the run; the merge only happens after every
// worker has finished cleanly, so no output file is left half-merged.
func Run(
	ctx context.Context,
	cfg Config,
	dec *bitext.Decoder,
	sp bitext.Specials,
	ext *align.Extractor,
	enc encoder.Encoder,
	outs Outputs,
	stderr io.Writer,
) error {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if outs.Align == "" {
		return errors.New("pipeline: no alignment output configured")
	}
	if _, err := os.Stat(cfg.Input); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	offsets, err := bitext.FindOffsets(cfg.Input, cfg.Workers)
	if err != nil {
		return fmt.Errorf("plan shards: %w", err)
	}
	n := len(offsets)

	type kind struct {
		path    string
		streams []*os.File
	}
	kinds := []*kind{{path: outs.Align}}
	if outs.Prob != "" {
		kinds = append(kinds, &kind{path: outs.Prob})
	}
	if outs.Word != "" {
		kinds = append(kinds, &kind{path: outs.Word})
	}
	for _, k := range kinds {
		k.streams, err = writers.Open(k.path, n)
		if err != nil {
			for _, prev := range kinds {
				if prev.streams != nil {
					writers.CloseAll(prev.streams)
				}
			}
			return fmt.Errorf("open %s: %w", k.path, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	warn := &syncWriter{w: stderr}
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		start := offsets[w]
		end := int64(0)
		if w+1 < n {
			end = offsets[w+1]
		}
		sh := shard{
			cfg:    cfg,
			dec:    dec,
			sp:     sp,
			ext:    ext,
			enc:    enc,
			start:  start,
			end:    end,
			stderr: warn,
		}
		for _, k := range kinds {
			sh.sinks = append(sh.sinks, bufio.NewWriter(k.streams[w]))
		}
		sh.probEnabled = outs.Prob != ""
		sh.wordEnabled = outs.Word != ""
		go func(id int, sh shard) {
			defer wg.Done()
			if err := sh.run(ctx); err != nil {
				errCh <- fmt.Errorf("worker %d: %w", id, err)
				cancel()
			}
		}(w, sh)
	}
	wg.Wait() // join barrier: merge must not start before every worker is done
	close(errCh)

	if err := <-errCh; err != nil {
		for _, k := range kinds {
			writers.CloseAll(k.streams)
		}
		return err
	}
	var firstErr error
	for _, k := range kinds {
		if err := writers.Merge(k.streams); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("merge %s: %w", k.path, err)
		}
	}
	return firstErr
}

// shard is one worker's slice of the run: a byte range of the input plus a
// private, internally ordered sink per enabled output kind.
type shard struct {
	cfg    Config
	dec    *bitext.Decoder
	sp     bitext.Specials
	ext    *align.Extractor
	enc    encoder.Encoder
	start  int64
	end    int64
	stderr io.Writer

	sinks       []*bufio.Writer // align[, prob][, word], same order as kinds
	probEnabled bool
	wordEnabled bool

	batch []bitext.Line
}

func (s *shard) run(ctx context.Context) error {
	s.batch = make([]bitext.Line, 0, s.cfg.BatchSize)
	err := bitext.ScanRange(ctx, s.cfg.Input, s.start, s.end, func(raw string, off int64) error {
		line, derr := s.dec.Decode(raw)
		if derr != nil {
			var pe *bitext.ParseError
			if !errors.As(derr, &pe) {
				return derr
			}
			// Recoverable: keep line-count parity with a sentinel record.
			cmdutil.Warnf(s.stderr, s.cfg.Quiet, "line %q (offset %d) is not in the correct format; emitting empty alignment", raw, off)
			line = bitext.Sentinel(s.sp)
		}
		s.batch = append(s.batch, line)
		if len(s.batch) >= s.cfg.BatchSize {
			return s.flush(ctx)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.flush(ctx); err != nil {
		return err
	}
	for _, sink := range s.sinks {
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// flush encodes the buffered batch (the only blocking external call) and
// writes one record per line to every enabled sink, preserving input order.
func (s *shard) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	srcSeqs := make([][]int64, len(s.batch))
	tgtSeqs := make([][]int64, len(s.batch))
	for i, line := range s.batch {
		srcSeqs[i] = line.Src.IDs
		tgtSeqs[i] = line.Tgt.IDs
	}
	srcIDs, srcMask := encoder.PadBatch(srcSeqs, s.sp.PAD)
	tgtIDs, tgtMask := encoder.PadBatch(tgtSeqs, s.sp.PAD)

	hidSrc, err := s.enc.Encode(ctx, srcIDs, srcMask, s.cfg.Layer)
	if err != nil {
		return fmt.Errorf("encode source batch: %w", err)
	}
	hidTgt, err := s.enc.Encode(ctx, tgtIDs, tgtMask, s.cfg.Layer)
	if err != nil {
		return fmt.Errorf("encode target batch: %w", err)
	}

	for i, line := range s.batch {
		var set align.Set
		if line.IsSentinel() {
			set = align.SentinelSet()
		} else {
			// Content rows only: strip the framing positions.
			ns, nt := len(line.Src.WordIndex), len(line.Tgt.WordIndex)
			set = s.ext.Extract(
				hidSrc[i][1:1+ns],
				hidTgt[i][1:1+nt],
				line.Src.WordIndex,
				line.Tgt.WordIndex,
			)
		}
		pairs := output.SortedPairs(set)

		records := []string{output.AlignRecord(pairs)}
		if s.probEnabled {
			records = append(records, output.ProbRecord(pairs, set))
		}
		if s.wordEnabled {
			records = append(records, output.WordRecord(pairs, line.SrcWords, line.TgtWords))
		}
		for k, rec := range records {
			if _, err := s.sinks[k].WriteString(rec + "\n"); err != nil {
				return err
			}
		}
	}
	s.batch = s.batch[:0]
	return nil
}

// syncWriter serializes worker warnings onto a shared stderr.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
