// Package process probes and launches daemon processes.
package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessAlive reports whether pid names a running process. Signal 0
// performs only the existence and permission checks; EPERM means the process
// exists under another user.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
