package supervisor

import (
	"time"

	"github.com/grovetools/nicepick/pkg/wire"
)

// State is the daemon lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateIdle
	StateActive
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

// Sink receives the events of one session. Send is called from the
// supervisor loop and must not block.
type Sink interface {
	Send(wire.Event) error
}

// Session is the single active picker interaction.
type Session struct {
	ID        string
	Seed      string
	CreatedAt time.Time

	sink Sink
}
