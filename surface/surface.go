// Package surface abstracts the long-lived render context the daemon keeps
// warm between picker invocations.
//
// Implementations are not safe for concurrent use. The supervisor calls every
// method from its render loop goroutine.
package surface

// Cell is one rendered result.
type Cell struct {
	ID    uint32
	Glyph string
	Name  string
}

// Frame is the complete picker contents to draw.
type Frame struct {
	Query string
	Cells []Cell
	// Highlight is the index of the focused cell, or -1.
	Highlight int
}

// UIEventKind identifies input produced by the toolkit layer.
type UIEventKind uint8

const (
	UIQuery UIEventKind = iota + 1
	UIPick
	UIDismiss
)

// UIEvent is user input observed on the surface.
type UIEvent struct {
	Kind    UIEventKind
	Text    string
	EntryID uint32
}

// Surface is a window-backed render context.
type Surface interface {
	// Init creates the context. It is called once, before any other method.
	Init() error
	Show() error
	Hide() error
	Visible() bool
	Render(Frame) error
	// Events delivers user input. The channel is closed by Close.
	Events() <-chan UIEvent
	Close() error
}
