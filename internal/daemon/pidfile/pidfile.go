// Package pidfile provides PID file management for the picker daemon.
package pidfile

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/grovetools/nicepick/pkg/process"
)

// pollInterval is how often AcquireWait re-checks a held pidfile.
const pollInterval = 25 * time.Millisecond

// HeldError reports a pidfile that belongs to another live process.
type HeldError struct {
	PID int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("daemon already running with PID %d", e.PID)
}

// Acquire writes the current PID to the file.
// It returns an error if another instance is already running.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	// Check if file exists
	if content, err := os.ReadFile(path); err == nil {
		pidStr := strings.TrimSpace(string(content))
		if pid, err := strconv.Atoi(pidStr); err == nil {
			if pid != os.Getpid() && process.IsProcessAlive(pid) {
				return &HeldError{PID: pid}
			}
			// Process is dead, cleanup stale file
			_ = os.Remove(path)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	return nil
}

// AcquireWait is Acquire, retried for up to wait while another live process
// holds the file. A daemon that is shutting down releases its pidfile right
// after removing its socket, so a successor started in that window gets in
// once it is gone.
func AcquireWait(ctx context.Context, path string, wait time.Duration) error {
	if wait <= 0 {
		return Acquire(path)
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := Acquire(path)
		var held *HeldError
		if err != nil && !stderrors.As(err, &held) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(pollInterval)),
		backoff.WithMaxElapsedTime(wait),
	)
	return err
}

// Release removes the PID file if it still belongs to this process.
func Release(path string) error {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// Read returns the PID from the file, or 0 if not found/invalid.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(content))
	return strconv.Atoi(pidStr)
}

// IsRunning checks if the daemon described by the pidfile is active.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
