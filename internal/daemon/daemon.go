// Package daemon runs the picker daemon: a warm render surface behind a
// supervisor, reached through a unix socket.
package daemon

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/nicepick/config"
	"github.com/grovetools/nicepick/internal/daemon/metrics"
	"github.com/grovetools/nicepick/internal/daemon/pidfile"
	"github.com/grovetools/nicepick/internal/daemon/server"
	"github.com/grovetools/nicepick/internal/daemon/supervisor"
	"github.com/grovetools/nicepick/logging"
	pkgdaemon "github.com/grovetools/nicepick/pkg/daemon"
	"github.com/grovetools/nicepick/router"
	"github.com/grovetools/nicepick/surface"
)

// shutdownGrace bounds how long open connections get to drain.
const shutdownGrace = 5 * time.Second

// DefaultPidWait is how long a starting daemon waits for a predecessor that
// is still shutting down to release the pidfile.
const DefaultPidWait = 2 * time.Second

// Options configures Run.
type Options struct {
	Config *config.Config
	// ConfigPath is watched for live changes when set.
	ConfigPath string
	// PidPath is acquired for the lifetime of the daemon when set.
	PidPath string
	// PidWait bounds the wait for a live holder of PidPath to let go. Zero
	// fails at once.
	PidWait time.Duration
	// Surface overrides the gg canvas built from Config.
	Surface surface.Surface
	Logger  *logrus.Entry
	// Ready is called once the socket accepts connections.
	Ready func(socketPath string)
}

// Run starts the daemon and blocks until ctx is canceled or the supervisor
// shuts down on its own (idle timeout). The socket is bound only after the
// catalog and render surface are ready, so a failed start leaves nothing for
// clients to connect to. On the way down the socket is removed and the
// pidfile released before open connections drain, so a successor can start
// immediately.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("daemon")
	}

	release := func() {}
	if opts.PidPath != "" {
		if err := pidfile.AcquireWait(ctx, opts.PidPath, opts.PidWait); err != nil {
			return err
		}
		var once sync.Once
		release = func() {
			once.Do(func() {
				if err := pidfile.Release(opts.PidPath); err != nil {
					logger.WithError(err).Error("Failed to release pidfile")
				}
			})
		}
		defer release()
	}

	m := metrics.New()

	surf := opts.Surface
	if surf == nil {
		surf = surface.NewCanvas(surface.CanvasOptions{
			Width:    cfg.Daemon.Width,
			Height:   cfg.Daemon.Height,
			FontPath: config.ExpandPath(cfg.Daemon.Font),
			DumpDir:  config.ExpandPath(cfg.Daemon.FrameDumpDir),
		}, logger.WithField("component", "daemon.surface"))
	}

	sup := supervisor.New(supervisor.Options{
		CatalogPath: cfg.CatalogPath(),
		IdleTimeout: cfg.Daemon.IdleTimeout.D(),
		QueueSize:   cfg.Daemon.CommandQueue,
		Query: router.Options{
			Debounce: cfg.Query.Debounce.D(),
			TopK:     cfg.Query.TopK,
		},
		Surface: surf,
		Metrics: m,
	}, logger.WithField("component", "daemon.supervisor"))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// The supervisor loads the catalog and creates the surface on its own
	// locked thread.
	g.Go(func() error { return sup.Run(gctx) })
	if err := sup.Ready(ctx); err != nil {
		cancel()
		if werr := g.Wait(); werr != nil {
			return werr
		}
		return err
	}

	srv := server.New(sup, server.Options{Metrics: m}, logger.WithField("component", "daemon.server"))
	socketPath := cfg.SocketPath()
	if err := srv.Listen(socketPath); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	logger.WithFields(logrus.Fields{
		"pid":    os.Getpid(),
		"socket": socketPath,
	}).Info("Daemon listening")

	g.Go(func() error { return srv.Serve(gctx) })

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.WithField("addr", cfg.Metrics.Listen).Info("Serving metrics")
			if err := metricsSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if opts.ConfigPath != "" {
		w, err := pkgdaemon.NewConfigWatcher(opts.ConfigPath, 0, func(next *config.Config) {
			applyReload(gctx, sup, next, logger)
		}, logger.WithField("component", "daemon.config"))
		if err != nil {
			logger.WithError(err).Warn("Config watcher disabled")
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	g.Go(func() error {
		select {
		case <-sup.Done():
			logger.Info("Supervisor stopped")
		case <-gctx.Done():
			logger.Info("Received stop signal")
		}
		cancel()

		if err := srv.Close(); err != nil {
			logger.WithError(err).Warn("Closing listener")
		}
		release()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Metrics server shutdown")
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if opts.Ready != nil {
		opts.Ready(socketPath)
	}

	return g.Wait()
}

// applyReload live-applies the settings that can change without a restart.
func applyReload(ctx context.Context, sup *supervisor.Supervisor, cfg *config.Config, logger *logrus.Entry) {
	var logCfg logging.Config
	if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
		logger.WithError(err).Warn("Ignoring logging section")
	} else if err := logging.SetLevel(logCfg.Level); err != nil {
		logger.WithError(err).Warn("Ignoring log level")
	}

	if err := sup.SetIdleTimeout(ctx, cfg.Daemon.IdleTimeout.D()); err != nil {
		logger.WithError(err).Warn("Failed to apply idle timeout")
		return
	}
	logger.WithField("idle_timeout", cfg.Daemon.IdleTimeout).Info("Applied config")
}
