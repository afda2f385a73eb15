package testutil

import (
	"fmt"
	"sync"

	"github.com/grovetools/nicepick/surface"
)

// Surface is an in-memory surface.Surface that records what it was asked to
// draw.
type Surface struct {
	// InitErr is returned by Init when set.
	InitErr error

	mu      sync.Mutex
	ready   bool
	closed  bool
	visible bool
	shows   int
	frames  []surface.Frame
	events  chan surface.UIEvent
}

// NewSurface returns a fake surface.
func NewSurface() *Surface {
	return &Surface{events: make(chan surface.UIEvent, 16)}
}

func (s *Surface) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InitErr != nil {
		return s.InitErr
	}
	s.ready = true
	return nil
}

func (s *Surface) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return fmt.Errorf("not initialized")
	}
	s.visible = true
	s.shows++
	return nil
}

func (s *Surface) Hide() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
	return nil
}

func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Surface) Render(f surface.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *Surface) Events() <-chan surface.UIEvent { return s.events }

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.visible = false
		close(s.events)
	}
	return nil
}

// Emit injects user input as if it came from the window. Input after Close
// or beyond the buffer is dropped.
func (s *Surface) Emit(ev surface.UIEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Shows returns how many times the surface was shown.
func (s *Surface) Shows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows
}

// Closed reports whether Close was called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastFrame returns the most recent frame, if any.
func (s *Surface) LastFrame() (surface.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return surface.Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}
