// File: loop/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"log/slog"

	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/dispatch"
	"github.com/momentics/hioload-pw/reactor"
)

// Option customizes a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// WithMetrics records runtime and event metrics.
func WithMetrics(m *control.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithDispatcher routes posted events to q instead of a private queue. Several
// runtimes may share one queue; per-runtime order is still preserved.
func WithDispatcher(q *dispatch.Queue) Option {
	return func(r *Runtime) { r.events = q }
}

// WithInvokeQueueSize bounds pending cross-thread invocations on the native loop.
func WithInvokeQueueSize(n int) Option {
	return func(r *Runtime) { r.loopOpts = append(r.loopOpts, reactor.WithInvokeQueueSize(n)) }
}

// WithWorkerCPU pins the worker thread to cpu. Negative values leave it unpinned.
func WithWorkerCPU(cpu int) Option {
	return func(r *Runtime) { r.cpu = cpu }
}

// WithID overrides the generated runtime id.
func WithID(id string) Option {
	return func(r *Runtime) { r.id = id }
}

// WithCloseHook registers fn to run once after the runtime has been destroyed.
func WithCloseHook(fn func(*Runtime)) Option {
	return func(r *Runtime) { r.onClose = append(r.onClose, fn) }
}
