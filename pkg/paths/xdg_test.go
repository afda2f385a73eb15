package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortableHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NICEPICK_HOME", home)
	t.Setenv(SocketEnv, "")

	assert.Equal(t, filepath.Join(home, "config", "nicepick"), ConfigDir())
	assert.Equal(t, filepath.Join(home, "data", "nicepick", "catalog.bin"), CatalogPath())
	assert.Equal(t, filepath.Join(home, "state", "nicepick", "nicepick.pid"), PidFilePath())
	assert.Equal(t, filepath.Join(home, "run", "nicepick.sock"), SocketPath())
}

func TestSocketPathResolution(t *testing.T) {
	t.Setenv("NICEPICK_HOME", "")

	t.Run("env override wins", func(t *testing.T) {
		t.Setenv(SocketEnv, "/tmp/custom.sock")
		t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
		assert.Equal(t, "/tmp/custom.sock", SocketPath())
	})

	t.Run("runtime dir", func(t *testing.T) {
		t.Setenv(SocketEnv, "")
		t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
		assert.Equal(t, "/run/user/1000/nicepick/nicepick.sock", SocketPath())
	})

	t.Run("falls back to state dir", func(t *testing.T) {
		t.Setenv(SocketEnv, "")
		t.Setenv("XDG_RUNTIME_DIR", "")
		t.Setenv("XDG_STATE_HOME", "/home/u/.local/state")
		assert.Equal(t, "/home/u/.local/state/nicepick/nicepick.sock", SocketPath())
	})
}

func TestEnsureDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NICEPICK_HOME", home)

	assert.NoError(t, EnsureDirs())
	assert.DirExists(t, ConfigDir())
	assert.DirExists(t, DataDir())
	assert.DirExists(t, RuntimeDir())
}
