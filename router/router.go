// Package router turns incremental query text into ranked catalog results.
//
// Submissions are debounced: within a burst only the most recent text is
// evaluated, after the burst has been quiet for the debounce interval.
package router

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/nicepick/catalog"
)

// DefaultTopK is used when Options.TopK is not positive.
const DefaultTopK = 48

// Searcher is the catalog query surface the router depends on.
type Searcher interface {
	Search(query string) *catalog.Matches
}

// Options controls debouncing and result size.
type Options struct {
	Debounce time.Duration
	TopK     int
}

// Result is the evaluation of one query burst.
type Result struct {
	// Seq identifies the submission that produced the result. Compare it with
	// Router.Latest to discard results overtaken by newer input.
	Seq     uint64
	Query   string
	Matches []catalog.Match
	Took    time.Duration
}

// Router debounces query text and evaluates it against a Searcher.
type Router struct {
	store   Searcher
	opts    Options
	deliver func(Result)
	logger  *logrus.Entry

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	seq     uint64
	closed  bool
}

// New creates a Router. deliver is called from a timer goroutine with each
// debounced result; it must not call back into the Router synchronously.
func New(store Searcher, opts Options, deliver func(Result), logger *logrus.Entry) *Router {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	return &Router{
		store:   store,
		opts:    opts,
		deliver: deliver,
		logger:  logger,
	}
}

// Submit records text as the latest query and (re)arms the debounce timer.
// It returns the sequence number of this submission.
func (r *Router) Submit(text string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.seq
	}
	r.pending = text
	r.seq++
	seq := r.seq
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.opts.Debounce, func() { r.fire(seq) })
	return seq
}

func (r *Router) fire(seq uint64) {
	r.mu.Lock()
	if r.closed || seq != r.seq {
		r.mu.Unlock()
		return
	}
	text := r.pending
	r.mu.Unlock()

	start := time.Now()
	matches := r.Evaluate(text)
	res := Result{Seq: seq, Query: text, Matches: matches, Took: time.Since(start)}

	if r.Latest() != seq {
		r.logger.WithField("query", text).Debug("Dropping overtaken query result")
		return
	}
	r.logger.WithFields(logrus.Fields{
		"query":   text,
		"results": len(matches),
		"took":    res.Took,
	}).Debug("Query evaluated")
	if r.deliver != nil {
		r.deliver(res)
	}
}

// Evaluate synchronously returns the top-K matches for text.
func (r *Router) Evaluate(text string) []catalog.Match {
	return r.store.Search(text).Take(r.opts.TopK)
}

// Latest returns the sequence number of the most recent submission.
func (r *Router) Latest() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Reset discards any pending burst. Results already in flight become stale.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.pending = ""
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Close stops the router; later submissions are ignored.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
