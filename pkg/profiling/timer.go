// Package profiling records nested timing spans for a single CLI invocation
// and hooks CPU/heap profiling into cobra commands.
package profiling

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stopper is an interface for stopping a timed span.
type Stopper interface {
	Stop()
}

// span represents a single timed operation in the hierarchy.
type span struct {
	name     string
	start    time.Time
	duration time.Duration
	children []*span
	profiler *Profiler
}

// Stop completes the timing for this span.
func (s *span) Stop() {
	s.profiler.endSpan(s, time.Since(s.start))
}

// Profiler manages a profiling session with nested timing spans.
type Profiler struct {
	enabled   bool
	mu        sync.Mutex
	root      *span
	spanStack []*span
}

var defaultProfiler = &Profiler{}

// Enable turns on the global profiler.
func Enable() {
	defaultProfiler.mu.Lock()
	defer defaultProfiler.mu.Unlock()

	if defaultProfiler.enabled {
		return
	}
	defaultProfiler.enabled = true
	defaultProfiler.root = &span{name: "root", start: time.Now(), profiler: defaultProfiler}
	defaultProfiler.spanStack = []*span{defaultProfiler.root}
}

// Disable turns the global profiler off and drops recorded spans.
func Disable() {
	defaultProfiler.mu.Lock()
	defer defaultProfiler.mu.Unlock()
	defaultProfiler.enabled = false
	defaultProfiler.root = nil
	defaultProfiler.spanStack = nil
}

// Start begins a new timed span nested under the innermost open span.
// It returns a Stopper which must be used to end the span, typically via defer.
func Start(name string) Stopper {
	return defaultProfiler.startSpan(name)
}

// Summarize prints the span tree with each span's share of the total.
func Summarize(w io.Writer) {
	defaultProfiler.mu.Lock()
	defer defaultProfiler.mu.Unlock()

	if !defaultProfiler.enabled || defaultProfiler.root == nil {
		return
	}
	total := time.Since(defaultProfiler.root.start)
	defaultProfiler.root.duration = total

	fmt.Fprintf(w, "\n--- Timing (%v) ---\n", total.Round(100*time.Microsecond))
	printSpan(w, defaultProfiler.root, 0, total)
}

func (p *Profiler) startSpan(name string) Stopper {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return noopStopper{}
	}

	parent := p.spanStack[len(p.spanStack)-1]
	s := &span{name: name, start: time.Now(), profiler: p}
	parent.children = append(parent.children, s)
	p.spanStack = append(p.spanStack, s)
	return s
}

// endSpan closes s and any spans opened inside it that were never stopped.
func (p *Profiler) endSpan(s *span, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.duration = d
	for i := len(p.spanStack) - 1; i > 0; i-- {
		if p.spanStack[i] == s {
			p.spanStack = p.spanStack[:i]
			return
		}
	}
}

// printSpan is a recursive helper to print the span tree.
func printSpan(w io.Writer, s *span, depth int, total time.Duration) {
	if s.name != "root" {
		percentage := 0.0
		if total > 0 {
			percentage = float64(s.duration) / float64(total) * 100
		}
		fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n",
			strings.Repeat("  ", depth-1), s.name, s.duration.Round(100*time.Microsecond), percentage)
	}

	sort.Slice(s.children, func(i, j int) bool {
		return s.children[i].start.Before(s.children[j].start)
	})
	for _, child := range s.children {
		printSpan(w, child, depth+1, total)
	}
}

// noopStopper is used when the profiler is disabled.
type noopStopper struct{}

func (noopStopper) Stop() {}
