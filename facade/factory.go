// File: facade/factory.go
// Connection factory for hioload-pw.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Factory is the caller-owned entry point to the media service: it initializes
// the client library once, hands out loop runtimes and refuses to de-initialize
// while any of them is still alive.

package facade

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/loop"
)

// Option customizes a Factory.
type Option func(*Factory)

// WithLogger sets the logger handed to every runtime.
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.log = l }
}

// WithMetrics records factory and runtime metrics.
func WithMetrics(m *control.Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// WithProbes registers a debug probe per live runtime.
func WithProbes(p *control.DebugProbes) Option {
	return func(f *Factory) { f.probes = p }
}

// WithLoopOptions applies opts to every runtime created by the factory.
func WithLoopOptions(opts ...loop.Option) Option {
	return func(f *Factory) { f.loopOpts = append(f.loopOpts, opts...) }
}

// WithConfig applies the loop settings of cfg.
func WithConfig(cfg *control.Config) Option {
	return WithLoopOptions(
		loop.WithInvokeQueueSize(cfg.InvokeQueueSize),
		loop.WithWorkerCPU(cfg.WorkerCPU),
	)
}

// Factory creates loop runtimes bound to one service.
type Factory struct {
	svc      api.Service
	log      *slog.Logger
	metrics  *control.Metrics
	probes   *control.DebugProbes
	loopOpts []loop.Option

	initialized bool
	shutdown    bool
	live        atomic.Int64
}

// New returns an uninitialized factory for svc.
func New(svc api.Service, opts ...Option) *Factory {
	f := &Factory{svc: svc, log: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Initialize initializes the service client library. Later calls are no-ops;
// after Shutdown the factory is final and Initialize fails with api.ErrLoopClosed.
// Callers serialize startup; Initialize is not safe for concurrent use.
func (f *Factory) Initialize() error {
	if f.shutdown {
		return api.Wrap(api.ErrLoopClosed, "facade.Initialize", fmt.Errorf("factory shut down"))
	}
	if f.initialized {
		return nil
	}
	if err := f.svc.Init(); err != nil {
		return api.Wrap(api.ErrInit, "facade.Initialize", err)
	}
	f.initialized = true
	f.log.Info("media service initialized")
	return nil
}

// Initialized reports whether Initialize succeeded and Shutdown has not run since.
func (f *Factory) Initialized() bool { return f.initialized }

// Service returns the service the factory was created for.
func (f *Factory) Service() api.Service { return f.svc }

// CreateLoop returns a fresh idle runtime. Options given here are applied after
// the factory-wide ones.
func (f *Factory) CreateLoop(opts ...loop.Option) (*loop.Runtime, error) {
	if !f.initialized {
		return nil, api.ErrNotInitialized
	}
	all := make([]loop.Option, 0, len(f.loopOpts)+len(opts)+3)
	all = append(all, loop.WithLogger(f.log), loop.WithMetrics(f.metrics))
	all = append(all, f.loopOpts...)
	all = append(all, opts...)
	all = append(all, loop.WithCloseHook(f.release))

	rt, err := loop.New(all...)
	if err != nil {
		return nil, err
	}
	f.live.Add(1)
	f.metrics.LoopOpened()
	f.probes.RegisterProbe("loop/"+rt.ID(), rt.Probe)
	return rt, nil
}

func (f *Factory) release(rt *loop.Runtime) {
	f.live.Add(-1)
	f.metrics.LoopClosed()
	f.probes.UnregisterProbe("loop/" + rt.ID())
}

// Live returns the number of runtimes created and not yet closed.
func (f *Factory) Live() int { return int(f.live.Load()) }

// Shutdown de-initializes the service. It fails with api.ErrLiveRuntimes while
// runtimes are alive and is a no-op on an uninitialized factory.
func (f *Factory) Shutdown() error {
	if !f.initialized {
		return nil
	}
	if n := f.live.Load(); n > 0 {
		return api.Wrap(api.ErrLiveRuntimes, "facade.Shutdown", fmt.Errorf("%d runtimes not closed", n))
	}
	if err := f.svc.Deinit(); err != nil {
		return fmt.Errorf("facade: deinit: %w", err)
	}
	f.initialized = false
	f.shutdown = true
	f.log.Info("media service shut down")
	return nil
}
