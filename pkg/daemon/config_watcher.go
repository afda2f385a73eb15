// Package daemon holds helpers shared by the picker daemon's long-running
// goroutines.
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/config"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// ConfigWatcher watches a nicepick config file and reports each successfully
// parsed revision.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	target   string // resolved symlink target, if path is a link
	debounce time.Duration
	onReload func(*config.Config)
	logger   *logrus.Entry

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher watches the directory holding path. fsnotify doesn't follow
// symlinks, so when path is a link its target directory is watched as well.
func NewConfigWatcher(path string, debounce time.Duration, onReload func(*config.Config), logger *logrus.Entry) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	var target string
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(path); err != nil {
			logger.WithError(err).Warnf("Failed to resolve symlink %s", path)
		} else {
			target = resolved
			if targetDir := filepath.Dir(resolved); targetDir != dir {
				if err := watcher.Add(targetDir); err != nil {
					logger.WithError(err).Warnf("Failed to watch symlink target dir %s", targetDir)
				} else {
					logger.Debugf("Watching symlink target directory: %s", targetDir)
				}
			}
		}
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &ConfigWatcher{
		watcher:  watcher,
		path:     path,
		target:   target,
		debounce: debounce,
		onReload: onReload,
		logger:   logger,
	}, nil
}

// Run delivers reloads until ctx is cancelled or the watcher is closed.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	defer w.stopTimer()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.relevant(event.Name) {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return nil
		}
	}
}

func (w *ConfigWatcher) relevant(name string) bool {
	name = filepath.Clean(name)
	return name == filepath.Clean(w.path) || (w.target != "" && name == w.target)
}

// schedule restarts the debounce timer; only the last event of a burst reloads.
func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring config change")
		return
	}
	w.logger.Infof("Config changed: %s", filepath.Base(w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}
