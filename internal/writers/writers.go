// internal/writers/writers.go
package writers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// IsBrokenPipe reports whether an error is a broken pipe / closed pipe.
// Useful when downstream consumers (like `head`) close early.
func IsBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}

// Open returns numWorkers concurrently writable streams for one output kind.
// Stream 0 is the destination file itself; streams 1..n-1 are temp files so
// every worker owns a private write target with no cross-worker contention.
func Open(path string, numWorkers int) ([]*os.File, error) {
	dst, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	streams := []*os.File{dst}
	for i := 1; i < numWorkers; i++ {
		tmp, err := os.CreateTemp("", "walign-*")
		if err != nil {
			CloseAll(streams)
			return nil, err
		}
		streams = append(streams, tmp)
	}
	return streams, nil
}

// Merge concatenates streams 1..n-1 onto the end of stream 0 in index order,
// closing (and removing) each as it goes, then closes stream 0. With a
// single stream it is a pure close. Cross-worker output order is restored
// here: each worker's stream is internally ordered, and shards are
// contiguous and ordered by construction.
func Merge(streams []*os.File) error {
	var first error
	for i, s := range streams[1:] {
		if first == nil {
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				first = fmt.Errorf("rewind worker %d stream: %w", i+1, err)
			} else if _, err := io.Copy(streams[0], s); err != nil {
				first = fmt.Errorf("merge worker %d stream: %w", i+1, err)
			}
		}
		discard(s)
	}
	if err := streams[0].Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// CloseAll releases every stream without merging; used on error paths so the
// destination is never left half-merged.
func CloseAll(streams []*os.File) {
	for i, s := range streams {
		if i == 0 {
			_ = s.Close()
			continue
		}
		discard(s)
	}
}

func discard(tmp *os.File) {
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
}
