package surface

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/errors"
)

// Grid geometry of the picker window.
const (
	DefaultWidth   = 400
	DefaultHeight  = 200
	DefaultColumns = 4
	cellSpacing    = 10.0
	cellHeight     = 44.0
	glyphPoints    = 32.0
	placeholder    = "⏳"
)

// Palette.
const (
	backgroundHex = "#282c34"
	cellHex       = "#3a3f4b"
	highlightHex  = "#61afef"
	glyphHex      = "#ffffff"
)

// CanvasOptions configures a Canvas.
type CanvasOptions struct {
	Width    int
	Height   int
	Columns  int
	FontPath string
	// DumpDir receives a PNG per rendered frame while visible.
	DumpDir string
}

// Canvas is a Surface drawing into a gogpu/gg context. The context uses the
// registered GPU accelerator when there is one and the software rasterizer
// otherwise.
type Canvas struct {
	opts    CanvasOptions
	logger  *logrus.Entry
	dc      *gg.Context
	hasFont bool
	visible bool
	frames  int
	last    Frame

	// mu orders Inject against Close so input never lands on a closed
	// channel.
	mu     sync.Mutex
	closed bool
	events chan UIEvent
}

// NewCanvas returns an uninitialized Canvas.
func NewCanvas(opts CanvasOptions, logger *logrus.Entry) *Canvas {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Columns <= 0 {
		opts.Columns = DefaultColumns
	}
	return &Canvas{
		opts:   opts,
		logger: logger,
		events: make(chan UIEvent, 16),
	}
}

// Init creates the drawing context and loads the glyph font once.
func (c *Canvas) Init() error {
	if c.dc != nil {
		return nil
	}
	start := time.Now()

	dc := gg.NewContext(c.opts.Width, c.opts.Height)
	if c.opts.FontPath != "" {
		src, err := text.NewFontSourceFromFile(c.opts.FontPath)
		if err != nil {
			dc.Close()
			return errors.ContextInit(err).WithDetail("font", c.opts.FontPath)
		}
		dc.SetFont(src.Face(glyphPoints))
		c.hasFont = true
	}
	if c.opts.DumpDir != "" {
		if err := os.MkdirAll(c.opts.DumpDir, 0700); err != nil {
			dc.Close()
			return errors.ContextInit(err).WithDetail("dump_dir", c.opts.DumpDir)
		}
	}
	c.dc = dc

	// Draw once so the first Show presents a finished frame.
	if err := c.draw(Frame{Highlight: -1}); err != nil {
		return errors.ContextInit(err)
	}
	c.logger.WithFields(logrus.Fields{
		"width":  c.opts.Width,
		"height": c.opts.Height,
		"font":   c.hasFont,
		"took":   time.Since(start),
	}).Debug("Render context initialized")
	return nil
}

// Show makes the window visible and re-presents the last frame.
func (c *Canvas) Show() error {
	if c.dc == nil {
		return fmt.Errorf("surface not initialized")
	}
	c.visible = true
	return c.present()
}

// Hide hides the window. The context stays alive.
func (c *Canvas) Hide() error {
	if c.dc == nil {
		return fmt.Errorf("surface not initialized")
	}
	c.visible = false
	c.last = Frame{Highlight: -1}
	return nil
}

// Visible reports whether the window is shown.
func (c *Canvas) Visible() bool { return c.visible }

// Render draws f and presents it when visible.
func (c *Canvas) Render(f Frame) error {
	if c.dc == nil {
		return fmt.Errorf("surface not initialized")
	}
	c.last = f
	if err := c.draw(f); err != nil {
		return err
	}
	if c.visible {
		return c.present()
	}
	return nil
}

// Events returns the UI input channel.
func (c *Canvas) Events() <-chan UIEvent { return c.events }

// Inject queues user input from the toolkit layer and may be called from any
// goroutine. It never blocks; input arriving while the queue is full or after
// Close is dropped.
func (c *Canvas) Inject(ev UIEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.logger.WithField("kind", ev.Kind).Debug("Surface closed, dropping input")
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		c.logger.WithField("kind", ev.Kind).Warn("UI event queue full, dropping input")
		return false
	}
}

// Frames returns the number of frames presented while visible.
func (c *Canvas) Frames() int { return c.frames }

// Close releases the drawing context and closes the event channel.
func (c *Canvas) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()

	if c.dc == nil {
		return nil
	}
	err := c.dc.Close()
	c.dc = nil
	c.visible = false
	return err
}

func (c *Canvas) draw(f Frame) error {
	dc := c.dc
	dc.ClearWithColor(gg.Hex(backgroundHex))

	cols := c.opts.Columns
	cellW := (float64(c.opts.Width) - cellSpacing*float64(cols+1)) / float64(cols)

	for i, cell := range f.Cells {
		row, col := i/cols, i%cols
		x := cellSpacing + float64(col)*(cellW+cellSpacing)
		y := cellSpacing + float64(row)*(cellHeight+cellSpacing)
		if y+cellHeight > float64(c.opts.Height) {
			break
		}

		if i == f.Highlight {
			dc.SetHexColor(highlightHex)
		} else {
			dc.SetHexColor(cellHex)
		}
		dc.DrawRoundedRectangle(x, y, cellW, cellHeight, 6)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("fill cell %d: %w", i, err)
		}

		glyph := cell.Glyph
		if !c.hasFont {
			glyph = placeholder
		}
		dc.SetHexColor(glyphHex)
		dc.DrawStringAnchored(glyph, x+cellW/2, y+cellHeight/2, 0.5, 0.5)
	}
	return nil
}

func (c *Canvas) present() error {
	c.frames++
	if c.opts.DumpDir == "" {
		return nil
	}
	path := filepath.Join(c.opts.DumpDir, fmt.Sprintf("frame-%05d.png", c.frames))
	if err := c.dc.SavePNG(path); err != nil {
		return fmt.Errorf("dump frame: %w", err)
	}
	return nil
}
