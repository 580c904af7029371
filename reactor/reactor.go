// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral part of the native loop. The poller backend lives in
// reactor_linux.go (epoll + eventfd) and reactor_stub.go (channel wakeup only).

package reactor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/internal/concurrency"
)

// ErrInterrupted is returned by Iterate when the wait was interrupted by a signal.
// It is not a fault; callers iterate again.
var ErrInterrupted = errors.New("reactor: interrupted")

// DefaultInvokeQueueSize bounds pending cross-thread invocations.
const DefaultInvokeQueueSize = 128

// Option customizes loop creation.
type Option func(*options)

type options struct {
	invokeQueueSize int
}

// WithInvokeQueueSize overrides DefaultInvokeQueueSize.
func WithInvokeQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.invokeQueueSize = n
		}
	}
}

// Loop is one native event loop. Iterate, Enter and Leave belong to the single
// goroutine that owns the loop; Invoke is safe from anywhere.
type Loop struct {
	p         *poller
	invokes   *concurrency.LockFreeQueue[func()]
	sources   map[int]api.SourceFunc
	owner     atomic.Int64
	iterating atomic.Bool
	closed    atomic.Bool
}

var _ api.Loop = (*Loop)(nil)

// New allocates a loop. Failures are reported as api.ErrInit.
func New(opts ...Option) (*Loop, error) {
	o := options{invokeQueueSize: DefaultInvokeQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	p, err := newPoller()
	if err != nil {
		return nil, api.Wrap(api.ErrInit, "reactor.New", err)
	}
	return &Loop{
		p:       p,
		invokes: concurrency.NewLockFreeQueue[func()](o.invokeQueueSize),
		sources: make(map[int]api.SourceFunc),
	}, nil
}

// Enter binds the loop to the calling OS thread. The caller must have locked
// its goroutine to the thread.
func (l *Loop) Enter() { l.owner.Store(threadID()) }

// Leave unbinds the loop from its thread.
func (l *Loop) Leave() { l.owner.Store(0) }

// InLoop reports whether the caller runs on the thread that entered the loop.
func (l *Loop) InLoop() bool {
	o := l.owner.Load()
	return o != 0 && o == threadID()
}

// Invoke queues fn for the loop thread and wakes it. From the loop thread fn runs inline.
func (l *Loop) Invoke(fn func()) error {
	if l.closed.Load() {
		return api.ErrLoopClosed
	}
	if l.InLoop() {
		fn()
		return nil
	}
	if !l.invokes.Enqueue(fn) {
		return api.Wrap(api.ErrQueueFull, "reactor.Invoke", fmt.Errorf("capacity %d", l.invokes.Cap()))
	}
	return l.p.wake()
}

// Wake interrupts a blocked Iterate without queuing anything.
func (l *Loop) Wake() error {
	if l.closed.Load() {
		return api.ErrLoopClosed
	}
	return l.p.wake()
}

// Pending returns the approximate number of queued invocations.
func (l *Loop) Pending() int { return l.invokes.Len() }

// AddSource watches fd for readability. Must be called before the loop starts
// iterating or from the loop thread.
func (l *Loop) AddSource(fd int, fn api.SourceFunc) error {
	if l.closed.Load() {
		return api.ErrLoopClosed
	}
	if _, dup := l.sources[fd]; dup {
		return api.Wrap(api.ErrInvalidArgument, "reactor.AddSource", fmt.Errorf("fd %d already registered", fd))
	}
	if err := l.p.add(fd); err != nil {
		return err
	}
	l.sources[fd] = fn
	return nil
}

// RemoveSource stops watching fd. Unknown descriptors are ignored.
func (l *Loop) RemoveSource(fd int) error {
	if _, ok := l.sources[fd]; !ok {
		return nil
	}
	delete(l.sources, fd)
	if l.closed.Load() {
		return nil
	}
	return l.p.remove(fd)
}

// Iterate waits up to timeout (negative blocks indefinitely) and dispatches queued
// invocations and ready sources. It returns the number of dispatched callbacks.
// ErrInterrupted is returned for signal interruptions; any other error is a fault.
func (l *Loop) Iterate(timeout time.Duration) (int, error) {
	if l.closed.Load() {
		return 0, api.ErrLoopClosed
	}
	l.iterating.Store(true)
	defer l.iterating.Store(false)

	ready, woke, err := l.p.wait(timeout)
	if err != nil {
		return 0, err
	}
	n := 0
	if woke {
		for {
			fn, ok := l.invokes.Dequeue()
			if !ok {
				break
			}
			fn()
			n++
		}
	}
	for _, fd := range ready {
		fn, ok := l.sources[fd]
		if !ok {
			continue
		}
		n++
		if err := fn(); err != nil {
			return n, fmt.Errorf("reactor: source fd %d: %w", fd, err)
		}
	}
	return n, nil
}

// Iterating reports whether an Iterate call is in progress.
func (l *Loop) Iterating() bool { return l.iterating.Load() }

// Closed reports whether Close has released the loop.
func (l *Loop) Closed() bool { return l.closed.Load() }

// Close frees the loop. It fails with api.ErrLoopBusy while an iteration is in
// progress; pending invocations are discarded.
func (l *Loop) Close() error {
	if l.iterating.Load() {
		return api.ErrLoopBusy
	}
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	for {
		if _, ok := l.invokes.Dequeue(); !ok {
			break
		}
	}
	l.sources = nil
	return l.p.close()
}
