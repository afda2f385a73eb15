// Package server provides the unix socket listener for the picker daemon.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/internal/daemon/metrics"
	"github.com/grovetools/nicepick/internal/daemon/supervisor"
)

// Supervisor is the session state machine the server forwards requests to.
type Supervisor interface {
	Show(ctx context.Context, sink supervisor.Sink, seed string) (*supervisor.Session, error)
	Hide(ctx context.Context, id string) error
	Select(ctx context.Context, id string, entryID uint32) error
	Query(ctx context.Context, id, text string) error
	Disconnect(id string)
	Ping(ctx context.Context) (supervisor.State, error)
}

// Options tunes the listener.
type Options struct {
	// AcceptRate limits accepted connections per second; AcceptBurst absorbs
	// double-press re-invocations.
	AcceptRate  rate.Limit
	AcceptBurst int
	// RequestTimeout bounds each request's wait on the supervisor.
	RequestTimeout time.Duration
	// WriteTimeout bounds each event write to a client.
	WriteTimeout time.Duration
	// OutboundQueue is the per-connection event buffer.
	OutboundQueue int
	Metrics       *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.AcceptRate <= 0 {
		o.AcceptRate = 50
	}
	if o.AcceptBurst <= 0 {
		o.AcceptBurst = 8
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = 64
	}
}

// Server manages the daemon's framed protocol over a Unix socket.
type Server struct {
	logger  *logrus.Entry
	sup     Supervisor
	opts    Options
	limiter *rate.Limiter
	uid     int

	listener   net.Listener
	socketPath string
	closed     atomic.Bool
	closeOnce  sync.Once
	shutdown   atomic.Bool

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

// New creates a new Server instance.
func New(sup Supervisor, opts Options, logger *logrus.Entry) *Server {
	opts.setDefaults()
	return &Server{
		logger:  logger,
		sup:     sup,
		opts:    opts,
		limiter: rate.NewLimiter(opts.AcceptRate, opts.AcceptBurst),
		uid:     os.Getuid(),
		conns:   make(map[*conn]struct{}),
	}
}

// Listen binds the unix socket at socketPath. A stale socket left by a dead
// daemon is removed; a socket with a live listener is an error.
func (s *Server) Listen(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if c, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond); err == nil {
			_ = c.Close()
			return fmt.Errorf("another daemon is listening on %s", socketPath)
		}
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
		s.logger.WithField("socket", socketPath).Debug("Removed stale socket")
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.socketPath = socketPath
	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return nil
}

// Addr returns the bound socket path, or "" before Listen.
func (s *Server) Addr() string { return s.socketPath }

// Serve accepts connections until ctx is canceled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("server is not listening")
	}
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
		nc, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return nil
			}
			if stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Warn("Accept failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		uid, err := peerUID(nc)
		if err != nil || uid != s.uid {
			s.logger.WithError(err).WithField("peer_uid", uid).Warn("Rejecting connection from foreign user")
			_ = nc.Close()
			continue
		}
		s.opts.Metrics.ConnectionAccepted()

		c := s.track(nc)
		if c == nil {
			return nil
		}
		go c.serve(ctx)
	}
}

// ListenAndServe binds socketPath and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	if err := s.Listen(socketPath); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close stops accepting connections and removes the socket file. Open
// connections are left to Shutdown.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.listener == nil {
			return
		}
		err = s.listener.Close()
		if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.WithError(rmErr).Warn("Failed to remove socket")
		}
		if stderrors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// Shutdown stops accepting, closes open connections and removes the socket.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdown.Swap(true) {
		return nil
	}
	s.logger.Info("Shutting down server...")

	err := s.Close()

	s.mu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *Server) track(nc net.Conn) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		_ = nc.Close()
		return nil
	}
	c := newConn(s, nc)
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return c
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func isClosedConn(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, errors.ErrCodeProtocol)
}
