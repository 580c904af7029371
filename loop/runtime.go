// File: loop/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime owns one native loop and the single worker goroutine (locked to its OS
// thread) that iterates it. While the worker runs it is the only goroutine that
// touches the loop or its attachments; everyone else goes through Invoke.

package loop

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/momentics/hioload-pw/affinity"
	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/dispatch"
	"github.com/momentics/hioload-pw/reactor"
)

type attachment struct {
	kind   Kind
	closer io.Closer
}

// Runtime is one native loop plus its worker.
type Runtime struct {
	id       string
	native   *reactor.Loop
	loopOpts []reactor.Option
	log      *slog.Logger
	metrics  *control.Metrics
	events   *dispatch.Queue
	cpu      int
	onClose  []func(*Runtime)

	mu          sync.Mutex // serializes Start, Stop, Attach
	state       atomic.Int32
	started     bool
	attachments []attachment

	running  bool // worker-owned stop flag
	stopReq  atomic.Bool
	fault    error
	done     chan struct{}
	doneOnce sync.Once

	closeMu sync.Mutex
	closed  bool
}

// New allocates a runtime and its native loop. Allocation failures are api.ErrInit.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{cpu: -1, done: make(chan struct{})}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("loop_id", r.id)
	if r.events == nil {
		r.events = dispatch.New(dispatch.WithMetrics(r.metrics))
	}
	native, err := reactor.New(r.loopOpts...)
	if err != nil {
		return nil, err
	}
	r.native = native
	return r, nil
}

// ID returns the runtime id stamped on every event it posts.
func (r *Runtime) ID() string { return r.id }

// State returns the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Alive reports whether the worker is iterating.
func (r *Runtime) Alive() bool {
	s := r.State()
	return s == StateRunning || s == StateStopRequested
}

// Done is closed once the runtime reaches StateStopped.
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Err returns the iteration fault that killed the worker, or nil after a
// requested stop or while running.
func (r *Runtime) Err() error {
	select {
	case <-r.done:
		return r.fault
	default:
		return nil
	}
}

// Events returns the queue this runtime posts to.
func (r *Runtime) Events() *dispatch.Queue { return r.events }

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger { return r.log }

// Metrics returns the runtime metrics; may be nil.
func (r *Runtime) Metrics() *control.Metrics { return r.metrics }

// Post submits ev from a worker callback.
func (r *Runtime) Post(ev api.Event) {
	ev.Loop = r.id
	r.metrics.EventPosted(ev.Kind.String())
	r.events.Post(ev)
}

// Invoke runs fn on the worker thread.
func (r *Runtime) Invoke(fn func()) error { return r.native.Invoke(fn) }

// Attach runs fn against the native loop and keeps the returned closer until
// Close. Only allowed before Start; at most one attachment per kind.
func (r *Runtime) Attach(kind Kind, fn func(l api.Loop) (io.Closer, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return api.Wrap(api.ErrAlreadyRunning, "Attach", fmt.Errorf("%s attachment on started loop %s", kind, r.id))
	}
	if r.State() == StateStopped {
		return api.ErrLoopStopped
	}
	for _, a := range r.attachments {
		if a.kind == kind {
			return api.Wrap(api.ErrAlreadyAttached, "Attach", fmt.Errorf("%s on loop %s", kind, r.id))
		}
	}
	c, err := fn(r.native)
	if err != nil {
		return err
	}
	r.attachments = append(r.attachments, attachment{kind: kind, closer: c})
	r.log.Debug("attached", "kind", kind)
	return nil
}

// Start spawns the worker. It fails with api.ErrAlreadyRunning if the runtime
// was started before, and api.ErrLoopStopped if it was stopped without starting.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return api.ErrAlreadyRunning
	}
	if r.State() == StateStopped {
		return api.ErrLoopStopped
	}
	r.started = true
	r.running = true
	r.state.Store(int32(StateRunning))

	entered := make(chan struct{})
	go r.run(entered)
	<-entered
	r.log.Info("loop started", "attachments", len(r.attachments))
	return nil
}

func (r *Runtime) run(entered chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer r.finish()
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic in loop callback: %v", p))
		}
	}()

	if r.cpu >= 0 {
		if err := affinity.SetAffinity(r.cpu); err != nil {
			r.log.Warn("worker pinning failed", "cpu", r.cpu, "error", err)
		}
	}
	r.native.Enter()
	defer r.native.Leave()
	close(entered)

	for r.running && !r.stopReq.Load() {
		if _, err := r.native.Iterate(-1); err != nil {
			if errors.Is(err, reactor.ErrInterrupted) {
				continue
			}
			r.fail(err)
			return
		}
	}
	r.log.Debug("worker left loop")
}

func (r *Runtime) fail(err error) {
	r.fault = api.Wrap(api.ErrIterationFault, "iterate", err)
	r.metrics.IterationFault()
	r.log.Error("loop iteration failed, worker exiting", "error", err)
}

func (r *Runtime) finish() {
	r.state.Store(int32(StateStopped))
	r.doneOnce.Do(func() { close(r.done) })
}

// Stop interrupts the worker through the loop's invoke queue, or a plain wakeup
// when that queue is full, and waits for it to exit. Safe from any goroutine and idempotent. From the worker itself it
// only requests the stop.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	switch r.State() {
	case StateIdle:
		r.finish()
		r.mu.Unlock()
		return nil
	case StateStopped:
		r.mu.Unlock()
		return nil
	case StateRunning:
		if r.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested)) {
			r.stopReq.Store(true)
			if err := r.native.Invoke(func() { r.running = false }); err != nil {
				// Full invoke queue: the flag is checked after the next iteration.
				if werr := r.native.Wake(); werr != nil {
					r.mu.Unlock()
					return fmt.Errorf("loop: request stop: %w", errors.Join(err, werr))
				}
				r.log.Debug("stop requested by wakeup", "error", err)
			}
		}
	}
	r.mu.Unlock()

	if r.native.InLoop() {
		return nil
	}
	<-r.done
	r.log.Info("loop stopped")
	return nil
}

// Close stops the worker if needed, releases attachments in reverse order and
// frees the native loop. Freeing a loop that is still iterated is a programming
// error and panics. Close is idempotent and not allowed from the worker.
func (r *Runtime) Close() error {
	if r.native.InLoop() {
		return api.ErrInLoopThread
	}
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return nil
	}
	if err := r.Stop(); err != nil {
		return err
	}
	if s := r.State(); s != StateStopped {
		panic(fmt.Sprintf("loop %s: destroy in state %s", r.id, s))
	}

	r.mu.Lock()
	atts := r.attachments
	r.attachments = nil
	r.mu.Unlock()

	var errs []error
	for i := len(atts) - 1; i >= 0; i-- {
		if err := atts[i].closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", atts[i].kind, err))
		}
	}
	if err := r.native.Close(); err != nil {
		if errors.Is(err, api.ErrLoopBusy) {
			panic(fmt.Sprintf("loop %s: native loop freed while iterated", r.id))
		}
		errs = append(errs, err)
	}
	r.closed = true
	r.log.Info("loop closed")
	for _, fn := range r.onClose {
		fn(r)
	}
	return errors.Join(errs...)
}

// Closed reports whether Close completed.
func (r *Runtime) Closed() bool {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	return r.closed
}

// Probe returns a debug snapshot.
func (r *Runtime) Probe() any {
	r.mu.Lock()
	kinds := make([]string, 0, len(r.attachments))
	for _, a := range r.attachments {
		kinds = append(kinds, string(a.kind))
	}
	r.mu.Unlock()
	out := map[string]any{
		"state":           r.State().String(),
		"attachments":     kinds,
		"pending_invokes": r.native.Pending(),
	}
	if err := r.Err(); err != nil {
		out["fault"] = err.Error()
	}
	return out
}
