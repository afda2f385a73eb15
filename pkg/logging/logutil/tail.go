package logutil

import (
	"bytes"
	"context"
	"io"
	stdlog "log"
	"os"

	"github.com/hpcloud/tail"
)

// TailOptions controls Tail.
type TailOptions struct {
	// Lines is how many trailing lines to print first; negative prints the
	// whole file.
	Lines  int
	Follow bool
}

// Tail writes the last lines of path to emit and, when following, every line
// appended afterwards until ctx is canceled.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string)) error {
	offset, err := lastLinesOffset(path, opts.Lines)
	if err != nil {
		return err
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    opts.Follow,
		ReOpen:    opts.Follow,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				return line.Err
			}
			emit(line.Text)
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		}
	}
}

// lastLinesOffset returns the byte offset where the last n lines of path begin.
func lastLinesOffset(path string, n int) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	end := len(data)
	if end > 0 && data[end-1] == '\n' {
		end--
	}
	pos := end
	for i := 0; i < n; i++ {
		idx := bytes.LastIndexByte(data[:pos], '\n')
		if idx < 0 {
			return 0, nil
		}
		pos = idx
	}
	if n == 0 {
		return int64(len(data)), nil
	}
	return int64(pos + 1), nil
}
