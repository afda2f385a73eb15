package server

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/pkg/wire"
)

type outbound struct {
	ev wire.Event
	// last closes the connection once the event is written.
	last bool
}

// conn is one client connection. The reader goroutine owns session; the
// writer goroutine owns writes to nc.
type conn struct {
	srv     *Server
	nc      net.Conn
	logger  *logrus.Entry
	out     chan outbound
	done    chan struct{}
	once    sync.Once
	session string
}

var errConnClosed = stderrors.New("connection closed")

func newConn(s *Server, nc net.Conn) *conn {
	return &conn{
		srv:    s,
		nc:     nc,
		logger: s.logger,
		out:    make(chan outbound, s.opts.OutboundQueue),
		done:   make(chan struct{}),
	}
}

// Send implements supervisor.Sink. It never blocks; a client that stops
// draining its events loses them.
func (c *conn) Send(ev wire.Event) error {
	return c.push(ev, ev.Terminal())
}

func (c *conn) push(ev wire.Event, last bool) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- outbound{ev: ev, last: last}:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errors.New(errors.ErrCodeInternal, "client is not draining events")
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.nc.Close()
	})
}

func (c *conn) serve(ctx context.Context) {
	defer c.srv.untrack(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop(ctx)
	if c.session != "" {
		c.srv.sup.Disconnect(c.session)
	}
	wg.Wait()
	c.close()
}

func (c *conn) writeLoop() {
	for {
		select {
		case o := <-c.out:
			_ = c.nc.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			if err := wire.WriteEvent(c.nc, o.ev); err != nil {
				c.logger.WithError(err).WithField("event", o.ev.Kind).Debug("Failed to write event")
				c.close()
				return
			}
			if o.last {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop decodes requests until the client closes, the connection is
// reset or a request ends the conversation.
func (c *conn) readLoop(ctx context.Context) {
	for {
		req, err := wire.ReadRequest(c.nc)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if isClosedConn(err) {
				c.close()
				return
			}
			c.reset(err)
			return
		}

		stop, err := c.handle(ctx, req)
		if err != nil {
			c.reset(err)
			return
		}
		if stop {
			return
		}
	}
}

// reset reports a protocol violation to the client and drops the connection.
func (c *conn) reset(err error) {
	c.logger.WithError(err).WithField("session", c.session).Warn("Resetting client connection")
	c.srv.opts.Metrics.ProtocolError()
	if perr := c.push(wire.ErrorEvent(err), true); perr != nil {
		c.close()
	}
}

// handle executes one request. It returns stop when the connection has been
// handed an event that closes it, and a protocol error for requests that are
// out of sequence.
func (c *conn) handle(parent context.Context, req wire.Request) (stop bool, err error) {
	ctx, cancel := context.WithTimeout(parent, c.srv.opts.RequestTimeout)
	defer cancel()

	switch req.Kind {
	case wire.RequestPing:
		if _, err := c.srv.sup.Ping(ctx); err != nil {
			return true, c.push(wire.ErrorEvent(err), true)
		}
		return false, c.push(wire.Event{Kind: wire.EventPong}, false)

	case wire.RequestShow:
		if c.session != "" {
			return false, errors.Protocol("show sent twice on one connection")
		}
		sess, err := c.srv.sup.Show(ctx, c, req.Seed)
		if err != nil {
			c.logger.WithError(err).Debug("Show rejected")
			return true, c.push(wire.ErrorEvent(err), true)
		}
		c.session = sess.ID
		return false, nil

	case wire.RequestHide, wire.RequestSelect, wire.RequestQuery:
		if c.session == "" {
			return false, errors.Protocol("%s sent before show", req.Kind)
		}
		var err error
		switch req.Kind {
		case wire.RequestHide:
			err = c.srv.sup.Hide(ctx, c.session)
		case wire.RequestSelect:
			err = c.srv.sup.Select(ctx, c.session, req.EntryID)
		default:
			err = c.srv.sup.Query(ctx, c.session, req.Text)
		}
		if err != nil {
			if errors.Is(err, errors.ErrCodeInvalidInput) {
				return false, c.push(wire.ErrorEvent(err), false)
			}
			return true, c.push(wire.ErrorEvent(err), true)
		}
		return false, nil
	}
	return false, errors.Protocol("unexpected request %s", req.Kind)
}
