package pidfile

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nicepick.pid")

	require.NoError(t, Acquire(path))

	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, Release(path))
	assert.NoFileExists(t, path)

	running, _, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicepick.pid")
	// PIDs this large are never allocated on Linux or macOS.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0600))

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReleaseLeavesForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicepick.pid")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0600))

	require.NoError(t, Release(path))
	assert.FileExists(t, path)
}

// holdWithChild writes the PID of a live child process into path.
func holdWithChild(t *testing.T, path string) *exec.Cmd {
	t.Helper()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0600))
	return cmd
}

func TestAcquireFailsWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicepick.pid")
	holder := holdWithChild(t, path)

	err := Acquire(path)
	var held *HeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, holder.Process.Pid, held.PID)

	start := time.Now()
	err = AcquireWait(context.Background(), path, 80*time.Millisecond)
	require.ErrorAs(t, err, &held)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireWaitOutlastsExitingHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicepick.pid")
	holder := holdWithChild(t, path)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = holder.Process.Kill()
		_ = holder.Wait()
	}()

	require.NoError(t, AcquireWait(context.Background(), path, 3*time.Second))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireWaitStopsOnContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicepick.pid")
	holdWithChild(t, path)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := AcquireWait(ctx, path, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
