package supervisor

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/nicepick/errors"
	"github.com/grovetools/nicepick/internal/daemon/metrics"
	"github.com/grovetools/nicepick/pkg/wire"
	"github.com/grovetools/nicepick/router"
	"github.com/grovetools/nicepick/surface"
	"github.com/grovetools/nicepick/testutil"
)

type recordingSink struct {
	events chan wire.Event
}

func newSink() *recordingSink {
	return &recordingSink{events: make(chan wire.Event, 64)}
}

func (r *recordingSink) Send(ev wire.Event) error {
	select {
	case r.events <- ev:
		return nil
	default:
		return fmt.Errorf("sink full")
	}
}

func (r *recordingSink) next(t *testing.T) wire.Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return wire.Event{}
	}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

type harness struct {
	sup    *Supervisor
	surf   *testutil.Surface
	cancel context.CancelFunc
	runErr chan error
}

func newSupervisor(t *testing.T, surf surface.Surface, idle time.Duration) *Supervisor {
	t.Helper()
	return New(Options{
		CatalogPath: testutil.WriteCatalog(t, t.TempDir(), testutil.SampleEntries()),
		IdleTimeout: idle,
		Query:       router.Options{Debounce: time.Millisecond, TopK: 10},
		Surface:     surf,
		Metrics:     metrics.New(),
	}, testLogger())
}

// runSupervisor starts the loop for sup and waits until startup succeeded.
func runSupervisor(t *testing.T, sup *Supervisor) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{sup: sup, cancel: cancel, runErr: make(chan error, 1)}
	go func() { h.runErr <- sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-sup.Done()
	})

	require.NoError(t, sup.Ready(ctx))
	require.Equal(t, StateIdle, sup.State())
	return h
}

func startSupervisor(t *testing.T, idle time.Duration) *harness {
	t.Helper()
	surf := testutil.NewSurface()
	h := runSupervisor(t, newSupervisor(t, surf, idle))
	h.surf = surf
	return h
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestShowAdmitsExactlyOneSession(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	sess, err := h.sup.Show(ctx(t), sink, "hea")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, StateActive, h.sup.State())
	assert.True(t, h.surf.Visible())

	shown := sink.next(t)
	assert.Equal(t, wire.EventShown, shown.Kind)
	assert.Equal(t, sess.ID, shown.Session)

	results := sink.next(t)
	require.Equal(t, wire.EventResults, results.Kind)
	require.NotEmpty(t, results.Entries)
	assert.Equal(t, uint32(2), results.Entries[0].ID)

	// A second Show is rejected and leaves the first session alone.
	other := newSink()
	_, err = h.sup.Show(ctx(t), other, "cat")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeBusy))
	assert.Equal(t, StateActive, h.sup.State())
	assert.Empty(t, other.events)
	assert.Equal(t, 1, h.surf.Shows())

	require.NoError(t, h.sup.Hide(ctx(t), sess.ID))
	assert.Equal(t, wire.EventHidden, sink.next(t).Kind)
	assert.Equal(t, wire.EventDismissed, sink.next(t).Kind)
}

func TestHideReturnsToIdle(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	sess, err := h.sup.Show(ctx(t), sink, "")
	require.NoError(t, err)

	require.NoError(t, h.sup.Hide(ctx(t), sess.ID))
	assert.Equal(t, StateIdle, h.sup.State())
	assert.False(t, h.surf.Visible())

	// Hiding a finished session is an error and does not change state.
	err = h.sup.Hide(ctx(t), sess.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, StateIdle, h.sup.State())
}

func TestDisconnectReturnsToIdle(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	sess, err := h.sup.Show(ctx(t), sink, "")
	require.NoError(t, err)

	h.sup.Disconnect(sess.ID)
	st, err := h.sup.Ping(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st)

	// The slot is free again.
	next, err := h.sup.Show(ctx(t), newSink(), "")
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.ID)
}

func TestSelectDeliversEntry(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	sess, err := h.sup.Show(ctx(t), sink, "pizza")
	require.NoError(t, err)
	sink.next(t) // shown
	sink.next(t) // results

	err = h.sup.Select(ctx(t), sess.ID, 999)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, StateActive, h.sup.State())

	require.NoError(t, h.sup.Select(ctx(t), sess.ID, 4))
	ev := sink.next(t)
	assert.Equal(t, wire.EventSelected, ev.Kind)
	assert.Equal(t, "🍕", ev.Entry.Glyph)
	assert.Equal(t, StateIdle, h.sup.State())
}

func TestQueryPushesResults(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	sess, err := h.sup.Show(ctx(t), sink, "")
	require.NoError(t, err)
	sink.next(t) // shown
	sink.next(t) // initial results

	require.NoError(t, h.sup.Query(ctx(t), sess.ID, "cat"))
	ev := sink.next(t)
	require.Equal(t, wire.EventResults, ev.Kind)
	assert.Equal(t, "cat", ev.Query)
	require.NotEmpty(t, ev.Entries)
	assert.Equal(t, uint32(3), ev.Entries[0].ID)

	testutil.WaitFor(t, time.Second, func() bool {
		f, ok := h.surf.LastFrame()
		return ok && f.Query == "cat"
	}, "surface renders the query result")
}

func TestSurfaceEventsDriveSession(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	_, err := h.sup.Show(ctx(t), sink, "")
	require.NoError(t, err)
	sink.next(t)
	sink.next(t)

	require.True(t, h.surf.Emit(surface.UIEvent{Kind: surface.UIPick, EntryID: 1}))
	ev := sink.next(t)
	assert.Equal(t, wire.EventSelected, ev.Kind)
	assert.Equal(t, uint32(1), ev.Entry.ID)

	_, err = h.sup.Show(ctx(t), sink, "")
	require.NoError(t, err)
	sink.next(t)
	sink.next(t)

	require.True(t, h.surf.Emit(surface.UIEvent{Kind: surface.UIDismiss}))
	assert.Equal(t, wire.EventDismissed, sink.next(t).Kind)
	testutil.WaitFor(t, time.Second, func() bool { return h.sup.State() == StateIdle }, "idle after dismiss")
}

func TestIdleTimeoutShutsDown(t *testing.T) {
	h := startSupervisor(t, 30*time.Millisecond)

	select {
	case <-h.sup.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down when idle")
	}
	assert.Equal(t, StateShuttingDown, h.sup.State())
	assert.True(t, h.surf.Closed())
	assert.NoError(t, <-h.runErr)

	_, err := h.sup.Show(ctx(t), newSink(), "")
	assert.True(t, errors.Is(err, errors.ErrCodeConnectFailure))
}

func TestShowQueuedBehindIdleExpiryIsRejected(t *testing.T) {
	h := startSupervisor(t, time.Hour)

	// Queue the expiry and a Show back to back; the loop runs them in order.
	require.NoError(t, h.sup.enqueue(ctx(t), func() { h.sup.idleExpired(h.sup.idleGen) }))
	_, err := h.sup.Show(ctx(t), newSink(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConnectFailure))
	<-h.sup.Done()
	assert.Equal(t, StateShuttingDown, h.sup.State())
}

func TestActiveSessionBlocksIdleShutdown(t *testing.T) {
	h := startSupervisor(t, 20*time.Millisecond)

	sess, err := h.sup.Show(ctx(t), newSink(), "")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateActive, h.sup.State())

	require.NoError(t, h.sup.Hide(ctx(t), sess.ID))
	select {
	case <-h.sup.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle timer was not re-armed after the session ended")
	}
}

func TestSetIdleTimeout(t *testing.T) {
	h := startSupervisor(t, 0)

	require.NoError(t, h.sup.SetIdleTimeout(ctx(t), 20*time.Millisecond))
	select {
	case <-h.sup.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("new idle timeout was not applied")
	}
}

func TestContextCancelEndsActiveSession(t *testing.T) {
	h := startSupervisor(t, 0)
	sink := newSink()

	_, err := h.sup.Show(ctx(t), sink, "")
	require.NoError(t, err)
	sink.next(t)
	sink.next(t)

	h.cancel()
	<-h.sup.Done()

	ev := sink.next(t)
	assert.Equal(t, wire.EventError, ev.Kind)
	assert.Equal(t, errors.ErrCodeConnectFailure, ev.Code)
	assert.Equal(t, wire.EventDismissed, sink.next(t).Kind)
}

func TestStartFailsOnCorruptCatalog(t *testing.T) {
	surf := testutil.NewSurface()
	sup := New(Options{
		CatalogPath: testutil.WriteCorruptCatalog(t, t.TempDir()),
		Surface:     surf,
	}, testLogger())

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCatalogCorrupt))
	assert.Equal(t, StateShuttingDown, sup.State())
	assert.Nil(t, sup.Catalog())
	assert.True(t, surf.Closed())

	select {
	case <-sup.Done():
	default:
		t.Fatal("Done not closed after failed start")
	}
	assert.Equal(t, err, sup.Ready(ctx(t)))
}

func TestStartFailsOnSurfaceInit(t *testing.T) {
	surf := testutil.NewSurface()
	surf.InitErr = fmt.Errorf("no display")
	sup := New(Options{
		CatalogPath: testutil.WriteCatalog(t, t.TempDir(), testutil.SampleEntries()),
		Surface:     surf,
	}, testLogger())

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeContextInit))
	assert.Equal(t, StateShuttingDown, sup.State())
}

func TestReadyWaitsForRun(t *testing.T) {
	sup := New(Options{Surface: testutil.NewSurface()}, testLogger())

	c, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sup.Ready(c)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))
	assert.Equal(t, "starting", sup.State().String())
}

func TestRunTwice(t *testing.T) {
	h := startSupervisor(t, 0)
	assert.Error(t, h.sup.Run(context.Background()))
	assert.Equal(t, StateIdle, h.sup.State())
}

func TestAbandonedShowIsNeverAdmitted(t *testing.T) {
	surf := testutil.NewSurface()
	sup := newSupervisor(t, surf, 0)

	// The loop is not running yet, so the Show stays queued past its deadline.
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sink := newSink()
	_, err := sup.Show(short, sink, "cat")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout))

	h := runSupervisor(t, sup)
	st, err := h.sup.Ping(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st)
	assert.Empty(t, sink.events)
	assert.Equal(t, 0, surf.Shows())

	next, err := h.sup.Show(ctx(t), newSink(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, next.ID)
}
