package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/pkg/wire"
	"github.com/grovetools/nicepick/testutil"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

// fakeDaemon answers each connection with handle.
type fakeDaemon struct {
	ln    net.Listener
	conns atomic.Int32
}

func serveFake(t *testing.T, socket string, handle func(net.Conn)) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	d := &fakeDaemon{ln: ln}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			d.conns.Add(1)
			go func() {
				defer c.Close()
				handle(c)
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return d
}

// picker plays a daemon that shows results and waits for the client.
func picker(entries []wire.Entry) func(net.Conn) {
	return func(c net.Conn) {
		req, err := wire.ReadRequest(c)
		if err != nil {
			return
		}
		switch req.Kind {
		case wire.RequestPing:
			_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventPong})
			return
		case wire.RequestShow:
		default:
			return
		}
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventShown, Session: "s-1"})
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventResults, Query: req.Seed, Entries: entries})

		for {
			req, err := wire.ReadRequest(c)
			if err != nil {
				return
			}
			switch req.Kind {
			case wire.RequestSelect:
				for _, e := range entries {
					if e.ID == req.EntryID {
						_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventSelected, Entry: e})
						return
					}
				}
			case wire.RequestHide:
				_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventHidden})
				_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventDismissed})
				return
			}
		}
	}
}

var hearts = []wire.Entry{
	{ID: 2, Glyph: "❤️", Name: "red_heart"},
	{ID: 9, Glyph: "💙", Name: "blue_heart"},
}

func socketPath(t *testing.T) string {
	return filepath.Join(testutil.SocketDir(t), "np.sock")
}

func TestPickFirst(t *testing.T) {
	socket := socketPath(t)
	serveFake(t, socket, picker(hearts))

	var pushes int
	c := New(Options{
		SocketPath: socket,
		First:      true,
		OnResults:  func(wire.Event) { pushes++ },
	}, testLogger())

	out, err := c.Pick(context.Background(), "heart")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelected, out.Kind)
	assert.Equal(t, "s-1", out.Session)
	assert.Equal(t, uint32(2), out.Entry.ID)
	assert.Equal(t, 1, pushes)
	assert.Equal(t, ExitSelected, ExitCode(out, err))
}

func TestPickDismissed(t *testing.T) {
	socket := socketPath(t)
	serveFake(t, socket, func(c net.Conn) {
		if _, err := wire.ReadRequest(c); err != nil {
			return
		}
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventShown, Session: "s-2"})
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventDismissed})
	})

	out, err := New(Options{SocketPath: socket}, testLogger()).Pick(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDismissed, out.Kind)
	assert.Equal(t, ExitDismissed, ExitCode(out, err))
}

func TestPickBusy(t *testing.T) {
	socket := socketPath(t)
	serveFake(t, socket, func(c net.Conn) {
		if _, err := wire.ReadRequest(c); err != nil {
			return
		}
		_ = wire.WriteEvent(c, wire.ErrorEvent(errors.Busy("other")))
	})

	out, err := New(Options{SocketPath: socket}, testLogger()).Pick(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeBusy))
	assert.Equal(t, ExitError, ExitCode(out, err))
}

func TestPickResponseTimeout(t *testing.T) {
	socket := socketPath(t)
	serveFake(t, socket, func(c net.Conn) {
		if _, err := wire.ReadRequest(c); err != nil {
			return
		}
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventShown, Session: "s-3"})
		time.Sleep(time.Second)
	})

	c := New(Options{SocketPath: socket, ResponseTimeout: 50 * time.Millisecond}, testLogger())
	_, err := c.Pick(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))
}

func TestPickWithoutDaemonAndNoBootstrap(t *testing.T) {
	c := New(Options{SocketPath: socketPath(t)}, testLogger())
	_, err := c.Pick(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConnectFailure))
}

func TestPickBootstrapsOnce(t *testing.T) {
	socket := socketPath(t)
	var boots atomic.Int32

	c := New(Options{
		SocketPath: socket,
		First:      true,
		Bootstrap: func(context.Context) error {
			boots.Add(1)
			serveFake(t, socket, picker(hearts))
			return nil
		},
	}, testLogger())

	out, err := c.Pick(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelected, out.Kind)
	assert.Equal(t, int32(1), boots.Load())
}

func TestPickBootstrapExhausted(t *testing.T) {
	var boots atomic.Int32
	c := New(Options{
		SocketPath: socketPath(t),
		Backoff:    Backoff{Initial: time.Millisecond, Max: 4 * time.Millisecond, Factor: 2, Attempts: 3},
		Bootstrap: func(context.Context) error {
			boots.Add(1)
			return nil
		},
	}, testLogger())

	start := time.Now()
	_, err := c.Pick(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeBootstrapFailure))
	assert.Equal(t, int32(1), boots.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPickBootstrapSpawnFails(t *testing.T) {
	c := New(Options{
		SocketPath: socketPath(t),
		Bootstrap:  func(context.Context) error { return fmt.Errorf("no such binary") },
	}, testLogger())

	_, err := c.Pick(context.Background(), "")
	assert.True(t, errors.Is(err, errors.ErrCodeBootstrapFailure))
}

func TestPickRetriesWhileDaemonShutsDown(t *testing.T) {
	socket := socketPath(t)
	var calls atomic.Int32
	serveFake(t, socket, func(c net.Conn) {
		if _, err := wire.ReadRequest(c); err != nil {
			return
		}
		// The first daemon is on its way out; later ones accept.
		if calls.Add(1) == 1 {
			_ = wire.WriteEvent(c, wire.ErrorEvent(errors.New(errors.ErrCodeConnectFailure, "daemon is shutting down")))
			return
		}
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventShown, Session: "s-4"})
		_ = wire.WriteEvent(c, wire.Event{Kind: wire.EventDismissed})
	})

	c := New(Options{
		SocketPath: socket,
		Backoff:    Backoff{Initial: time.Millisecond, Max: 4 * time.Millisecond, Factor: 2, Attempts: 3},
		Bootstrap:  func(context.Context) error { return nil },
	}, testLogger())

	out, err := c.Pick(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDismissed, out.Kind)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPickContextCanceled(t *testing.T) {
	socket := socketPath(t)
	serveFake(t, socket, picker(hearts))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Options{SocketPath: socket}, testLogger()).Pick(ctx, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))
}

func TestPing(t *testing.T) {
	socket := socketPath(t)
	c := New(Options{SocketPath: socket}, testLogger())

	_, err := c.Ping(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeConnectFailure))

	serveFake(t, socket, picker(nil))
	rtt, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitError, ExitCode(nil, nil))
	assert.Equal(t, ExitError, ExitCode(&Outcome{Kind: OutcomeSelected}, fmt.Errorf("x")))
	assert.Equal(t, ExitSelected, ExitCode(&Outcome{Kind: OutcomeSelected}, nil))
	assert.Equal(t, ExitDismissed, ExitCode(&Outcome{Kind: OutcomeDismissed}, nil))
	assert.Equal(t, "selected", OutcomeSelected.String())
}
