package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/pkg/paths"
	"github.com/grovetools/nicepick/pkg/process"
)

// SpawnDaemon returns a Bootstrap func that starts `<exe> daemon start` in
// its own session. Extra args are appended, e.g. a --config flag. The
// daemon's output goes to the log directory.
func SpawnDaemon(exe string, extra []string, logger *logrus.Entry) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if exe == "" {
			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}
			exe = self
		}

		logPath := ""
		if err := os.MkdirAll(paths.LogDir(), 0700); err == nil {
			logPath = filepath.Join(paths.LogDir(), "daemon.out")
		}

		args := append([]string{"daemon", "start"}, extra...)
		pid, err := process.StartDetached(exe, args, logPath)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"pid": pid,
			"exe": exe,
		}).Debug("Spawned daemon")
		return nil
	}
}
