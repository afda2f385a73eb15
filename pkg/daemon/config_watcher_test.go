package daemon

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
	"github.com/grovetools/nicepick/logging"
	"github.com/grovetools/nicepick/testutil"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*config.Config
}

func (r *reloads) add(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) snapshot() []*config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*config.Config(nil), r.cfgs...)
}

func startWatcher(t *testing.T, path string, r *reloads) {
	t.Helper()
	w, err := NewConfigWatcher(path, 50*time.Millisecond, r.add, logging.NewLogger("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nicepick.yml")
	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  idle_timeout: 10m\n"), 0644))

	var r reloads
	startWatcher(t, path, &r)

	require.NoError(t, os.WriteFile(path, []byte("daemon:\n  idle_timeout: 2m\n"), 0644))

	testutil.WaitFor(t, 2*time.Second, func() bool {
		got := r.snapshot()
		return len(got) > 0 && got[len(got)-1].Daemon.IdleTimeout.D() == 2*time.Minute
	}, "config reload")
}

func TestConfigWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nicepick.yml")
	require.NoError(t, os.WriteFile(path, []byte("query:\n  top_k: 1\n"), 0644))

	var r reloads
	startWatcher(t, path, &r)

	for i := 2; i <= 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("query:\n  top_k: "+string(rune('0'+i))+"\n"), 0644))
	}

	testutil.WaitFor(t, 2*time.Second, func() bool {
		got := r.snapshot()
		return len(got) > 0 && got[len(got)-1].Query.TopK == 5
	}, "config reload")
	assert.Less(t, len(r.snapshot()), 4)
}

func TestConfigWatcherIgnoresInvalidAndUnrelated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nicepick.yml")
	require.NoError(t, os.WriteFile(path, []byte("query:\n  top_k: 4\n"), 0644))

	var r reloads
	startWatcher(t, path, &r)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x: 1\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("query:\n  bogus: 1\n"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, r.snapshot())
}

func TestConfigWatcherFollowsSymlinkTarget(t *testing.T) {
	real := filepath.Join(t.TempDir(), "dotfiles.yml")
	require.NoError(t, os.WriteFile(real, []byte("query:\n  top_k: 4\n"), 0644))
	link := filepath.Join(t.TempDir(), "nicepick.yml")
	require.NoError(t, os.Symlink(real, link))

	var r reloads
	startWatcher(t, link, &r)

	require.NoError(t, os.WriteFile(real, []byte("query:\n  top_k: 9\n"), 0644))

	testutil.WaitFor(t, 2*time.Second, func() bool {
		got := r.snapshot()
		return len(got) > 0 && got[len(got)-1].Query.TopK == 9
	}, "config reload through symlink")
}
