package logging

import (
	"io"
	"os"
	"sync"
)

// stderrSink is the terminal destination shared by every logger. Commands
// and tests point it elsewhere with SetGlobalOutput; loggers created earlier
// follow the change.
type stderrSink struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *stderrSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	w := s.w
	s.mu.RUnlock()
	return w.Write(p)
}

var sharedStderr = &stderrSink{w: os.Stderr}

// SetGlobalOutput redirects the stderr sink of every logger.
func SetGlobalOutput(w io.Writer) {
	sharedStderr.mu.Lock()
	sharedStderr.w = w
	sharedStderr.mu.Unlock()
}

// GetGlobalOutput returns the shared stderr sink.
func GetGlobalOutput() io.Writer {
	return sharedStderr
}
