package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// reopeningWriter appends to a log file and reopens it when the file has been
// removed or replaced underneath a long-running daemon.
type reopeningWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func newReopeningWriter(path string) *reopeningWriter {
	return &reopeningWriter{path: path}
}

// Write implements the io.Writer interface.
func (w *reopeningWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nicepick-log: %v\n", err)
		return 0, err
	}
	return f.Write(p)
}

// Close implements the io.Closer interface.
func (w *reopeningWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *reopeningWriter) current() (*os.File, error) {
	if w.file != nil {
		open, err1 := w.file.Stat()
		onDisk, err2 := os.Stat(w.path)
		if err1 == nil && err2 == nil && os.SameFile(open, onDisk) {
			return w.file, nil
		}
		_ = w.file.Close()
		w.file = nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	w.file = f
	return f, nil
}
