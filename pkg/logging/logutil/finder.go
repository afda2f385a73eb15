// Package logutil locates and follows the daemon's log files.
package logutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/nicepick/config"
	"github.com/grovetools/nicepick/logging"
	"github.com/grovetools/nicepick/pkg/paths"
)

// FindDaemonLogFile returns the configured daemon log file, or the most
// recent daemon log in the state directory.
func FindDaemonLogFile(cfg *config.Config) (string, error) {
	var logCfg logging.Config
	if cfg != nil {
		// A malformed logging section falls back to the default location.
		_ = cfg.UnmarshalExtension("logging", &logCfg)
	}

	if logCfg.File.Path != "" {
		return config.ExpandPath(logCfg.File.Path), nil
	}
	return FindLatestLogFile(paths.LogDir(), "daemon")
}

// FindLatestLogFile finds the most recently modified file in dir whose name
// starts with prefix. Files with content win over empty ones.
func FindLatestLogFile(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("could not read log directory %s: %w", dir, err)
	}

	var latestFile os.FileInfo
	var latestPath string
	var latestNonEmptyFile os.FileInfo
	var latestNonEmptyPath string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latestFile == nil || info.ModTime().After(latestFile.ModTime()) {
			latestFile = info
			latestPath = filepath.Join(dir, entry.Name())
		}
		if info.Size() > 0 {
			if latestNonEmptyFile == nil || info.ModTime().After(latestNonEmptyFile.ModTime()) {
				latestNonEmptyFile = info
				latestNonEmptyPath = filepath.Join(dir, entry.Name())
			}
		}
	}

	if latestNonEmptyFile != nil {
		return latestNonEmptyPath, nil
	}
	if latestFile == nil {
		return "", fmt.Errorf("no %s log files found in %s", prefix, dir)
	}
	return latestPath, nil
}
