package logutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/nicepick/config"
	"github.com/grovetools/nicepick/testutil"
)

func writeFile(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFindLatestLogFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(dir, "daemon-2026-01-01.log"), "old\n", now.Add(-2*time.Hour))
	writeFile(t, filepath.Join(dir, "daemon-2026-01-02.log"), "new\n", now.Add(-time.Hour))
	writeFile(t, filepath.Join(dir, "daemon-2026-01-03.log"), "", now)
	writeFile(t, filepath.Join(dir, "client-2026-01-03.log"), "client\n", now)

	got, err := FindLatestLogFile(dir, "daemon")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daemon-2026-01-02.log"), got)

	_, err = FindLatestLogFile(dir, "server")
	assert.Error(t, err)
}

func TestFindDaemonLogFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NICEPICK_HOME", home)

	cfg, err := config.LoadFromBytes([]byte("logging:\n  file:\n    path: /var/tmp/np.log\n"), config.FormatYAML)
	require.NoError(t, err)
	got, err := FindDaemonLogFile(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/np.log", got)

	logs := filepath.Join(home, "state", "nicepick", "logs")
	require.NoError(t, os.MkdirAll(logs, 0700))
	writeFile(t, filepath.Join(logs, "daemon-2026-01-02.log"), "ready\n", time.Now())
	got, err = FindDaemonLogFile(nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logs, "daemon-2026-01-02.log"), got)
}

func TestLastLinesOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0600))

	tests := []struct {
		n    int
		want int64
	}{
		{-1, 0},
		{0, 6},
		{1, 4},
		{2, 2},
		{10, 0},
	}
	for _, tt := range tests {
		got, err := lastLinesOffset(path, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0600))

	var lines []string
	err := Tail(context.Background(), path, TailOptions{Lines: 2}, func(l string) { lines = append(lines, l) })
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)
}

func TestTailFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.log")
	require.NoError(t, os.WriteFile(path, []byte("boot\n"), 0600))

	var mu sync.Mutex
	var lines []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Tail(ctx, path, TailOptions{Lines: 1, Follow: true}, func(l string) {
			mu.Lock()
			lines = append(lines, l)
			mu.Unlock()
		})
	}()

	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
	testutil.WaitFor(t, 2*time.Second, func() bool { return len(snapshot()) == 1 }, "initial line")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("Daemon ready\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	testutil.WaitFor(t, 3*time.Second, func() bool { return len(snapshot()) == 2 }, "appended line")
	assert.Equal(t, []string{"boot", "Daemon ready"}, snapshot())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not stop")
	}
}
