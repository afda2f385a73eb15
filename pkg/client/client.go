// Package client talks to the picker daemon over its unix socket, starting
// the daemon on demand.
package client

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/pkg/profiling"
	"github.com/grovetools/nicepick/pkg/wire"
)

// Backoff bounds the retries that follow a daemon bootstrap.
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Attempts int
}

// DefaultBackoff is 25ms doubling up to 400ms, six attempts.
var DefaultBackoff = Backoff{
	Initial:  25 * time.Millisecond,
	Max:      400 * time.Millisecond,
	Factor:   2,
	Attempts: 6,
}

// Options configures a Client.
type Options struct {
	SocketPath      string
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	Backoff         Backoff
	// Bootstrap starts a daemon when none answers. Nil disables it.
	Bootstrap func(ctx context.Context) error
	// First selects the top entry of the first result push.
	First bool
	// OnResults observes intermediate result pushes.
	OnResults func(wire.Event)
}

// Client opens picker sessions against the daemon.
type Client struct {
	opts   Options
	logger *logrus.Entry
}

// New creates a Client, filling unset options with defaults.
func New(opts Options, logger *logrus.Entry) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 250 * time.Millisecond
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 5 * time.Minute
	}
	if opts.Backoff.Attempts <= 0 {
		opts.Backoff.Attempts = DefaultBackoff.Attempts
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff.Initial = DefaultBackoff.Initial
	}
	if opts.Backoff.Max <= 0 {
		opts.Backoff.Max = DefaultBackoff.Max
	}
	if opts.Backoff.Factor < 1 {
		opts.Backoff.Factor = DefaultBackoff.Factor
	}
	return &Client{opts: opts, logger: logger}
}

// Dial connects to the daemon socket within the connect timeout.
func (c *Client) Dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "unix", c.opts.SocketPath)
	if err != nil {
		return nil, errors.ConnectFailure(c.opts.SocketPath, err)
	}
	return conn, nil
}

// Pick opens a session seeded with seed and waits for its outcome. When the
// daemon is unreachable it bootstraps one daemon and retries with bounded
// exponential backoff.
func (c *Client) Pick(ctx context.Context, seed string) (*Outcome, error) {
	defer profiling.Start("pick").Stop()

	out, err := c.session(ctx, seed)
	if err == nil || !errors.Is(err, errors.ErrCodeConnectFailure) {
		return out, err
	}
	if c.opts.Bootstrap == nil {
		return nil, err
	}

	c.logger.WithError(err).Debug("Daemon unreachable, starting one")
	spawn := profiling.Start("bootstrap")
	berr := c.opts.Bootstrap(ctx)
	spawn.Stop()
	if berr != nil {
		return nil, errors.BootstrapFailure(0, berr)
	}

	b := c.opts.Backoff
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     b.Initial,
		RandomizationFactor: 0,
		Multiplier:          b.Factor,
		MaxInterval:         b.Max,
	}

	attempts := 0
	out, err = backoff.Retry(ctx, func() (*Outcome, error) {
		attempts++
		out, err := c.session(ctx, seed)
		if err != nil && !errors.Is(err, errors.ErrCodeConnectFailure) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(b.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WithField("retry_in", next).Debug("Daemon not ready yet")
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if stderrors.As(err, &perm) {
			err = perm.Err
		}
		if errors.Is(err, errors.ErrCodeConnectFailure) {
			return nil, errors.BootstrapFailure(attempts, err)
		}
		if ctx.Err() != nil && errors.GetCode(err) == "" {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "gave up waiting for daemon")
		}
		return nil, err
	}
	return out, nil
}

// session runs one Show conversation on a fresh connection.
func (c *Client) session(ctx context.Context, seed string) (*Outcome, error) {
	defer profiling.Start("session").Stop()

	conn, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(c.opts.ResponseTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.ConnectFailure(c.opts.SocketPath, err)
	}

	if err := wire.WriteRequest(conn, wire.Request{Kind: wire.RequestShow, Seed: seed}); err != nil {
		return nil, errors.ConnectFailure(c.opts.SocketPath, err)
	}

	out := &Outcome{}
	picked := false
	for {
		ev, err := wire.ReadEvent(conn)
		if err != nil {
			return nil, c.readError(ctx, err, out.Session != "")
		}

		switch ev.Kind {
		case wire.EventShown:
			out.Session = ev.Session
			c.logger.WithField("session", ev.Session).Debug("Picker shown")
		case wire.EventResults:
			if c.opts.OnResults != nil {
				c.opts.OnResults(ev)
			}
			if c.opts.First && !picked && len(ev.Entries) > 0 {
				picked = true
				req := wire.Request{Kind: wire.RequestSelect, EntryID: ev.Entries[0].ID}
				if err := wire.WriteRequest(conn, req); err != nil {
					return nil, errors.Wrap(err, errors.ErrCodeProtocol, "failed to send selection")
				}
			}
		case wire.EventHidden:
		case wire.EventSelected:
			out.Kind = OutcomeSelected
			out.Entry = ev.Entry
			return out, nil
		case wire.EventDismissed:
			out.Kind = OutcomeDismissed
			return out, nil
		case wire.EventError:
			return nil, ev.Err()
		default:
			return nil, errors.Protocol("unexpected %s event during session", ev.Kind)
		}
	}
}

func (c *Client) readError(ctx context.Context, err error, shown bool) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "picker session canceled")
	}
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Timeout("waiting for selection", c.opts.ResponseTimeout)
	}
	if errors.GetCode(err) != "" {
		return err
	}
	if !shown {
		// Closed before admitting the session: the daemon went away under us.
		return errors.ConnectFailure(c.opts.SocketPath, err)
	}
	return errors.Wrap(err, errors.ErrCodeProtocol, "daemon closed the session without an outcome")
}

// Ping checks that a daemon answers on the socket and returns the round trip.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	conn, err := c.Dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return 0, errors.ConnectFailure(c.opts.SocketPath, err)
	}
	if err := wire.WriteRequest(conn, wire.Request{Kind: wire.RequestPing}); err != nil {
		return 0, errors.ConnectFailure(c.opts.SocketPath, err)
	}
	ev, err := wire.ReadEvent(conn)
	if err != nil {
		if stderrors.Is(err, os.ErrDeadlineExceeded) {
			return 0, errors.Timeout("ping", 2*time.Second)
		}
		if errors.GetCode(err) != "" {
			return 0, err
		}
		return 0, errors.ConnectFailure(c.opts.SocketPath, err)
	}
	if err := ev.Err(); err != nil {
		return 0, err
	}
	if ev.Kind != wire.EventPong {
		return 0, errors.Protocol("expected pong, got %s", ev.Kind)
	}
	return time.Since(start), nil
}
