package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartDetached launches exe with args in a new session so it outlives the
// calling process. Stdout and stderr go to logPath when set, otherwise they
// are discarded. The child is released immediately; its PID is returned.
func StartDetached(exe string, args []string, logPath string) (int, error) {
	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return 0, fmt.Errorf("open daemon log: %w", err)
		}
		// The child holds its own descriptor after Start.
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release child %d: %w", pid, err)
	}
	return pid, nil
}
