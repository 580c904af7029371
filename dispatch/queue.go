// File: dispatch/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deferred dispatch from loop workers to the host goroutine. Workers Post; the
// host Drains on its own schedule. Handlers never run on a worker.

package dispatch

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
)

// Handler consumes one drained event on the host goroutine.
type Handler func(ev api.Event)

// Option customizes a Queue.
type Option func(*Queue)

// WithScheduler sets a hook called on a worker when the queue turns non-empty.
// The hook must only schedule a later Drain on the host (e.g. post to the
// host's own main-thread queue); it must not drain synchronously.
func WithScheduler(fn func()) Option {
	return func(q *Queue) { q.schedule = fn }
}

// WithMetrics records drained events.
func WithMetrics(m *control.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue is an unbounded FIFO of deferred events with per-kind handlers.
type Queue struct {
	mu      sync.Mutex
	events  *queue.Queue
	ready   chan struct{}
	closed  bool
	pending bool // a schedule notification is outstanding

	schedule func()
	metrics  *control.Metrics

	// host side only
	handlers map[api.EventKind]Handler
	fallback Handler
}

var _ api.Dispatcher = (*Queue)(nil)

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		events:   queue.New(),
		ready:    make(chan struct{}, 1),
		handlers: make(map[api.EventKind]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Post enqueues ev. Called from loop workers; never blocks on the host.
func (q *Queue) Post(ev api.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		ev.Frame.Release()
		return
	}
	q.events.Add(ev)
	notify := !q.pending
	q.pending = true
	q.mu.Unlock()

	if notify {
		q.notify()
	}
}

func (q *Queue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
	if q.schedule != nil {
		q.schedule()
	}
}

// Ready is signalled when events become available after a Drain.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

// Handle registers the handler for kind. Host side.
func (q *Queue) Handle(kind api.EventKind, h Handler) { q.handlers[kind] = h }

// HandleAll registers a handler for kinds without a specific one. Host side.
func (q *Queue) HandleAll(h Handler) { q.fallback = h }

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events.Length()
}

// Drain delivers the events queued at call time, in FIFO order, and returns how
// many were delivered. Events posted while draining wait for the next Drain.
// Unhandled frames are released.
func (q *Queue) Drain() int {
	q.mu.Lock()
	n := q.events.Length()
	batch := make([]api.Event, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, q.events.Remove().(api.Event))
	}
	more := q.events.Length() > 0
	q.pending = more
	q.mu.Unlock()
	if more {
		q.notify()
	}

	for _, ev := range batch {
		h := q.handlers[ev.Kind]
		if h == nil {
			h = q.fallback
		}
		q.metrics.EventDrained(ev.Kind.String())
		if h == nil {
			ev.Frame.Release()
			continue
		}
		h(ev)
	}
	return len(batch)
}

// Close discards queued events and drops later posts.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for q.events.Length() > 0 {
		ev := q.events.Remove().(api.Event)
		ev.Frame.Release()
	}
}
