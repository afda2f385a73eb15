// Package supervisor owns the daemon state machine, the warm render surface
// and the catalog. Every state change runs on one goroutine, locked to its OS
// thread, that drains a single FIFO command channel.
package supervisor

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/catalog"
	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/internal/daemon/metrics"
	"github.com/grovetools/nicepick/pkg/wire"
	"github.com/grovetools/nicepick/router"
	"github.com/grovetools/nicepick/surface"
)

// DefaultQueueSize is the command channel capacity when Options.QueueSize is
// not positive.
const DefaultQueueSize = 64

// Options configures a Supervisor.
type Options struct {
	CatalogPath string
	// IdleTimeout is how long the daemon may stay Idle before shutting down.
	// Zero disables idle shutdown.
	IdleTimeout time.Duration
	QueueSize   int
	Query       router.Options
	Surface     surface.Surface
	Metrics     *metrics.Metrics
}

type command func()

// Supervisor serializes session admission and owns the render surface.
type Supervisor struct {
	opts    Options
	logger  *logrus.Entry
	metrics *metrics.Metrics

	cmds     chan command
	state    atomic.Int32
	done     chan struct{}
	ready    chan struct{}
	running  atomic.Bool
	startErr error

	// Owned by the loop goroutine.
	catalog     *catalog.Catalog
	router      *router.Router
	surface     surface.Surface
	session     *Session
	idleTimeout time.Duration
	idleTimer   *time.Timer
	idleGen     uint64
	results     []catalog.Match
}

// New creates a Supervisor in the Starting state. Nothing is loaded until
// Run.
func New(opts Options, logger *logrus.Entry) *Supervisor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	s := &Supervisor{
		opts:        opts,
		logger:      logger,
		metrics:     opts.Metrics,
		cmds:        make(chan command, opts.QueueSize),
		done:        make(chan struct{}),
		ready:       make(chan struct{}),
		surface:     opts.Surface,
		idleTimeout: opts.IdleTimeout,
	}
	s.setState(StateStarting)
	return s
}

// start loads the catalog and initializes the render surface. It runs on
// the loop goroutine so the surface is created on the thread that drives it.
func (s *Supervisor) start(ctx context.Context) error {
	if s.surface == nil {
		return s.fail(errors.ContextInit(fmt.Errorf("no render surface configured")))
	}

	start := time.Now()
	cat, err := catalog.Load(s.opts.CatalogPath)
	if err != nil {
		return s.fail(err)
	}
	loadTook := time.Since(start)
	s.metrics.StartupPhase("catalog", loadTook)
	s.logger.WithFields(logrus.Fields{
		"path":    s.opts.CatalogPath,
		"entries": cat.Len(),
		"took":    loadTook,
	}).Debug("Catalog loaded")

	if err := ctx.Err(); err != nil {
		return s.fail(err)
	}

	initStart := time.Now()
	if err := s.surface.Init(); err != nil {
		if errors.GetCode(err) == "" {
			err = errors.ContextInit(err)
		}
		return s.fail(err)
	}
	initTook := time.Since(initStart)
	s.metrics.StartupPhase("surface", initTook)
	s.logger.WithField("took", initTook).Debug("Render surface initialized")

	s.catalog = cat
	s.router = router.New(cat, s.opts.Query, s.deliverResult, s.logger.WithField("subsystem", "router"))

	s.setState(StateIdle)
	s.armIdle()
	s.logger.WithFields(logrus.Fields{
		"entries": cat.Len(),
		"took":    time.Since(start),
	}).Info("Daemon ready")
	return nil
}

func (s *Supervisor) fail(err error) error {
	s.logger.WithError(err).Error("Daemon startup failed")
	s.setState(StateShuttingDown)
	if s.surface != nil {
		if cerr := s.surface.Close(); cerr != nil {
			s.logger.WithError(cerr).Debug("Closing render surface")
		}
	}
	close(s.done)
	return err
}

// Run locks its goroutine to an OS thread, loads the catalog and initializes
// the render surface on it, then drains the command channel until shutdown.
// The startup outcome is also reported through Ready. On startup failure the
// supervisor moves straight to ShuttingDown, Done is closed and the error is
// returned.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("supervisor already running")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s.startErr = s.start(ctx)
	close(s.ready)
	if s.startErr != nil {
		return s.startErr
	}

	uiEvents := s.surface.Events()
	for {
		select {
		case cmd := <-s.cmds:
			cmd()
		case ev, ok := <-uiEvents:
			if !ok {
				uiEvents = nil
				continue
			}
			s.handleUI(ev)
		case <-ctx.Done():
			s.shutdown("context canceled")
		}
		if s.State() == StateShuttingDown {
			return nil
		}
	}
}

// Ready blocks until Run has finished startup and returns the startup error,
// if any.
func (s *Supervisor) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.startErr
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "supervisor did not start")
	}
}

// Done is closed once the supervisor has reached ShuttingDown.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Catalog returns the loaded catalog, or nil until startup succeeds.
func (s *Supervisor) Catalog() *catalog.Catalog {
	if s.State() == StateStarting {
		return nil
	}
	return s.catalog
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetState(int(st))
}

// enqueue hands cmd to the loop. It fails once the supervisor is shutting
// down.
func (s *Supervisor) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-s.done:
		return errShuttingDown()
	default:
	}
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return errShuttingDown()
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "supervisor queue is full")
	}
}

// Claim states of a queued call.
const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

// call runs fn on the loop and waits for its result. A caller that gives up
// before the loop reaches the command abandons it, and fn never runs; once fn
// has started the caller always gets its result.
func (s *Supervisor) call(ctx context.Context, fn func() error) error {
	var claim atomic.Int32
	reply := make(chan error, 1)
	err := s.enqueue(ctx, func() {
		if !claim.CompareAndSwap(callPending, callRunning) {
			return
		}
		reply <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		if claim.CompareAndSwap(callPending, callAbandoned) {
			return errShuttingDown()
		}
		return <-reply
	case <-ctx.Done():
		if claim.CompareAndSwap(callPending, callAbandoned) {
			return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "supervisor did not answer")
		}
		return <-reply
	}
}

func errShuttingDown() error {
	return errors.New(errors.ErrCodeConnectFailure, "daemon is shutting down")
}

// Show admits a new session for sink. It fails with Busy while another
// session is active and with ConnectFailure once shutdown has begun.
func (s *Supervisor) Show(ctx context.Context, sink Sink, seed string) (*Session, error) {
	var sess *Session
	err := s.call(ctx, func() error {
		var err error
		sess, err = s.admit(sink, seed)
		return err
	})
	if err != nil {
		s.metrics.ShowRejected(string(errors.GetCode(err)))
		return nil, err
	}
	return sess, nil
}

// Hide ends session id as dismissed.
func (s *Supervisor) Hide(ctx context.Context, id string) error {
	return s.call(ctx, func() error {
		if err := s.owns(id); err != nil {
			return err
		}
		s.send(wire.Event{Kind: wire.EventHidden})
		s.endSession(wire.Event{Kind: wire.EventDismissed}, "dismissed")
		return nil
	})
}

// Select ends session id with the chosen entry.
func (s *Supervisor) Select(ctx context.Context, id string, entryID uint32) error {
	return s.call(ctx, func() error {
		if err := s.owns(id); err != nil {
			return err
		}
		return s.selectEntry(entryID)
	})
}

// Query feeds incremental query text for session id into the router.
func (s *Supervisor) Query(ctx context.Context, id, text string) error {
	return s.call(ctx, func() error {
		if err := s.owns(id); err != nil {
			return err
		}
		s.router.Submit(text)
		return nil
	})
}

// Disconnect ends session id because its client went away. Unknown or
// already finished sessions are ignored.
func (s *Supervisor) Disconnect(id string) {
	err := s.enqueue(context.Background(), func() {
		if s.session == nil || s.session.ID != id {
			return
		}
		s.logger.WithField("session", id).Debug("Client disconnected")
		s.session.sink = nil
		s.endSession(wire.Event{}, "disconnected")
	})
	if err != nil {
		s.logger.WithField("session", id).Debug("Disconnect after shutdown ignored")
	}
}

// Ping round-trips through the loop and reports the state it observed.
func (s *Supervisor) Ping(ctx context.Context) (State, error) {
	var st State
	err := s.call(ctx, func() error {
		st = s.State()
		return nil
	})
	return st, err
}

// SetIdleTimeout changes the idle shutdown delay. The idle timer is re-armed
// when the daemon is Idle.
func (s *Supervisor) SetIdleTimeout(ctx context.Context, d time.Duration) error {
	return s.call(ctx, func() error {
		if d == s.idleTimeout {
			return nil
		}
		s.logger.WithFields(logrus.Fields{
			"old": s.idleTimeout,
			"new": d,
		}).Info("Idle timeout changed")
		s.idleTimeout = d
		if s.State() == StateIdle {
			s.armIdle()
		}
		return nil
	})
}

func (s *Supervisor) owns(id string) error {
	if s.session == nil || s.session.ID != id {
		return errors.New(errors.ErrCodeInvalidInput, "no such session").WithDetail("session", id)
	}
	return nil
}

func (s *Supervisor) admit(sink Sink, seed string) (*Session, error) {
	switch s.State() {
	case StateShuttingDown:
		return nil, errShuttingDown()
	case StateActive:
		return nil, errors.Busy(s.session.ID)
	}

	if err := s.surface.Show(); err != nil {
		s.logger.WithError(err).Error("Failed to show render surface")
		return nil, errors.ContextInit(err)
	}
	s.stopIdle()

	sess := &Session{
		ID:        uuid.NewString(),
		Seed:      seed,
		CreatedAt: time.Now(),
		sink:      sink,
	}
	s.session = sess
	s.setState(StateActive)
	s.logger.WithFields(logrus.Fields{
		"session": sess.ID,
		"seed":    seed,
	}).Info("Session started")

	s.send(wire.Event{Kind: wire.EventShown, Session: sess.ID})

	start := time.Now()
	matches := s.router.Evaluate(seed)
	s.metrics.QueryEvaluated(time.Since(start))
	s.present(seed, matches)
	return sess, nil
}

func (s *Supervisor) selectEntry(entryID uint32) error {
	entry, ok := s.catalog.Lookup(entryID)
	if !ok {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown entry %d", entryID))
	}
	s.logger.WithFields(logrus.Fields{
		"session": s.session.ID,
		"entry":   entry.ID,
		"name":    entry.Name,
	}).Info("Entry selected")
	s.endSession(wire.Event{Kind: wire.EventSelected, Entry: toWire(entry)}, "selected")
	return nil
}

// endSession delivers the terminal event (if any), hides the surface and
// returns to Idle.
func (s *Supervisor) endSession(terminal wire.Event, outcome string) {
	if s.session == nil {
		return
	}
	if terminal.Kind != 0 {
		s.send(terminal)
	}
	s.logger.WithFields(logrus.Fields{
		"session":  s.session.ID,
		"outcome":  outcome,
		"duration": time.Since(s.session.CreatedAt),
	}).Info("Session ended")
	s.metrics.SessionEnded(outcome)

	s.router.Reset()
	s.results = nil
	s.session = nil
	if err := s.surface.Hide(); err != nil {
		s.logger.WithError(err).Warn("Failed to hide render surface")
	}
	s.setState(StateIdle)
	s.armIdle()
}

func (s *Supervisor) send(ev wire.Event) {
	if s.session == nil || s.session.sink == nil {
		return
	}
	if err := s.session.sink.Send(ev); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session": s.session.ID,
			"event":   ev.Kind,
		}).Warn("Failed to push event to client")
	}
}

// deliverResult runs on a router timer goroutine.
func (s *Supervisor) deliverResult(res router.Result) {
	s.metrics.QueryEvaluated(res.Took)
	err := s.enqueue(context.Background(), func() {
		if s.session == nil || res.Seq != s.router.Latest() {
			return
		}
		s.present(res.Query, res.Matches)
	})
	if err != nil {
		s.logger.WithField("query", res.Query).Debug("Dropping query result after shutdown")
	}
}

// present renders matches and pushes them to the session client.
func (s *Supervisor) present(query string, matches []catalog.Match) {
	s.results = matches

	frame := surface.Frame{Query: query, Highlight: -1, Cells: make([]surface.Cell, len(matches))}
	entries := make([]wire.Entry, len(matches))
	for i, m := range matches {
		frame.Cells[i] = surface.Cell{ID: m.Entry.ID, Glyph: m.Entry.Glyph, Name: m.Entry.Name}
		entries[i] = toWire(m.Entry)
	}
	if len(matches) > 0 {
		frame.Highlight = 0
	}
	if err := s.surface.Render(frame); err != nil {
		s.logger.WithError(err).Warn("Failed to render results")
	}
	s.send(wire.Event{Kind: wire.EventResults, Query: query, Entries: entries})
}

func (s *Supervisor) handleUI(ev surface.UIEvent) {
	if s.session == nil {
		s.logger.WithField("kind", ev.Kind).Debug("UI event without session ignored")
		return
	}
	switch ev.Kind {
	case surface.UIQuery:
		s.router.Submit(ev.Text)
	case surface.UIPick:
		if err := s.selectEntry(ev.EntryID); err != nil {
			s.logger.WithError(err).Warn("Invalid pick from surface")
		}
	case surface.UIDismiss:
		s.endSession(wire.Event{Kind: wire.EventDismissed}, "dismissed")
	}
}

func (s *Supervisor) armIdle() {
	s.stopIdle()
	if s.idleTimeout <= 0 {
		return
	}
	s.idleGen++
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		_ = s.enqueue(context.Background(), func() { s.idleExpired(gen) })
	})
}

func (s *Supervisor) stopIdle() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.idleGen++
}

// idleExpired runs on the loop. Because Show admission runs on the same loop,
// a Show queued behind this command observes ShuttingDown and is refused.
func (s *Supervisor) idleExpired(gen uint64) {
	if gen != s.idleGen || s.session != nil || s.State() != StateIdle {
		return
	}
	s.shutdown(fmt.Sprintf("idle for %s", s.idleTimeout))
}

func (s *Supervisor) shutdown(reason string) {
	if s.State() == StateShuttingDown {
		return
	}
	s.logger.WithField("reason", reason).Info("Daemon shutting down")
	if s.session != nil {
		s.send(wire.ErrorEvent(errShuttingDown()))
		s.endSession(wire.Event{Kind: wire.EventDismissed}, "dismissed")
	}
	s.stopIdle()
	s.setState(StateShuttingDown)
	if s.router != nil {
		s.router.Close()
	}
	if err := s.surface.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close render surface")
	}
	close(s.done)
}

func toWire(e catalog.Entry) wire.Entry {
	return wire.Entry{ID: e.ID, Glyph: e.Glyph, Name: e.Name, Category: uint8(e.Category)}
}
