// core/bitext/stream.go
package bitext

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
)

// ScanRange streams raw lines (newline stripped) to emit, starting at byte
// offset start. After each line, if the file position has reached or passed
// end, scanning stops: a line crossing the boundary is still fully consumed,
// which together with FindOffsets guarantees shards never truncate a line.
// end <= 0 means read to EOF.
//
// It is cancelable between lines via ctx.
func ScanRange(ctx context.Context, path string, start, end int64, emit func(line string, offset int64) error) error {
	if end > 0 && start >= end {
		return nil // collapsed shard (tiny file): nothing to consume
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return err
		}
	}

	br := bufio.NewReaderSize(f, 256*1024)
	pos := start
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			off := pos
			pos += int64(len(line))
			line = strings.TrimRight(line, "\r\n")
			if eerr := emit(line, off); eerr != nil {
				return eerr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if end > 0 && pos >= end {
			return nil
		}
	}
}
