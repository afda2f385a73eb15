// Package paths provides XDG-compliant path resolution for nicepick.
//
// Resolution order:
// 1. NICEPICK_HOME (portable root) → $NICEPICK_HOME/{config,data,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/nicepick
// 3. Platform defaults → ~/.config/nicepick, ~/.local/share/nicepick, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "nicepick"

// SocketEnv overrides the daemon socket path.
const SocketEnv = "NICEPICK_SOCKET"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("NICEPICK_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if home := os.Getenv("NICEPICK_HOME"); home != "" {
		return filepath.Join(home, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("NICEPICK_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the nicepick configuration directory.
// Used for nicepick.yml / nicepick.toml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// DataDir returns the nicepick data directory.
// Used for the compiled catalog and fonts.
func DataDir() string {
	base := getDataHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// StateDir returns the nicepick state directory.
// Used for the pid file and logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("NICEPICK_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the daemon unix socket.
// NICEPICK_SOCKET takes precedence over the runtime directory.
func SocketPath() string {
	if p := os.Getenv(SocketEnv); p != "" {
		return p
	}
	return filepath.Join(RuntimeDir(), appName+".sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), appName+".pid")
}

// CatalogPath returns the default location of the compiled catalog.
func CatalogPath() string {
	return filepath.Join(DataDir(), "catalog.bin")
}

// LogDir returns the directory for daemon log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnsureDirs creates all nicepick directories if they don't exist.
// The runtime directory is created owner-only since it holds the socket.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if dir := RuntimeDir(); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
