// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server is the host side of the bridge: it owns the registry loop from
// construction, keeps the source table, opens capture streams per source and
// drains every loop's events on the host goroutine.

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/dispatch"
	"github.com/momentics/hioload-pw/facade"
	"github.com/momentics/hioload-pw/loop"
	"github.com/momentics/hioload-pw/pool"
	"github.com/momentics/hioload-pw/registry"
	"github.com/momentics/hioload-pw/stream"
)

// Sink observes drained events on the host goroutine. Frames are released
// after all sinks returned; sinks that keep data must copy it.
type Sink func(ev api.Event)

type capture struct {
	target string
	rt     *loop.Runtime
	bridge *stream.Bridge
}

// Server is not safe for concurrent use; every method belongs to the host goroutine.
type Server struct {
	factory  *facade.Factory
	log      *slog.Logger
	metrics  *control.Metrics
	pool     *pool.FramePool
	schedule func()
	liveness time.Duration

	events       *dispatch.Queue
	sources      *registry.Sources
	registryLoop *loop.Runtime
	registryDead bool
	captures     map[string]*capture
	byLoop       map[string]*capture
	sinks        []Sink
	closed       bool
}

// New initializes the factory if needed, then creates, attaches and starts the
// registry loop.
func New(f *facade.Factory, opts ...Option) (*Server, error) {
	s := &Server{
		factory:  f,
		log:      slog.Default(),
		liveness: time.Second,
		sources:  registry.NewSources(),
		captures: make(map[string]*capture),
		byLoop:   make(map[string]*capture),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = pool.NewFramePool(8)
	}
	qopts := []dispatch.Option{dispatch.WithMetrics(s.metrics)}
	if s.schedule != nil {
		qopts = append(qopts, dispatch.WithScheduler(s.schedule))
	}
	s.events = dispatch.New(qopts...)
	s.events.Handle(api.EventRegistryAdded, s.onRegistry)
	s.events.Handle(api.EventRegistryRemoved, s.onRegistry)
	s.events.Handle(api.EventFormatChanged, s.onFormat)
	s.events.Handle(api.EventFrameReady, s.onFrame)

	if err := f.Initialize(); err != nil {
		return nil, err
	}
	rt, err := f.CreateLoop(loop.WithDispatcher(s.events))
	if err != nil {
		return nil, err
	}
	if err := registry.Attach(rt, f.Service()); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := rt.Start(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	s.registryLoop = rt
	s.log.Info("registry loop running", "loop_id", rt.ID())
	return s, nil
}

// OnEvent adds a sink.
func (s *Server) OnEvent(sink Sink) { s.sinks = append(s.sinks, sink) }

// Sources returns a copy of the known registry entries by id.
func (s *Server) Sources() map[uint32]api.RegistryEntry { return s.sources.Snapshot() }

// SourceIDs returns the known ids in ascending order.
func (s *Server) SourceIDs() []uint32 { return s.sources.IDs() }

// RegistryAlive reports whether the registry loop is still iterating.
func (s *Server) RegistryAlive() bool { return !s.registryDead && s.registryLoop.Alive() }

func (s *Server) deliver(ev api.Event) {
	for _, sink := range s.sinks {
		sink(ev)
	}
}

func (s *Server) onRegistry(ev api.Event) {
	if s.sources.Apply(ev) {
		switch ev.Kind {
		case api.EventRegistryAdded:
			s.log.Info("found source", "id", ev.Entry.ID, "type", ev.Entry.Type, "version", ev.Entry.Version)
		case api.EventRegistryRemoved:
			s.log.Info("removed source", "id", ev.ID)
		}
	}
	s.deliver(ev)
}

func (s *Server) onFormat(ev api.Event) {
	target := ""
	if c, ok := s.byLoop[ev.Loop]; ok {
		target = c.target
	}
	s.log.Info("stream format changed", "target", target, "format", ev.Format.String())
	s.deliver(ev)
}

func (s *Server) onFrame(ev api.Event) {
	defer ev.Frame.Release()
	s.deliver(ev)
}

// OpenStream starts a capture stream for target on its own loop. At most one
// stream per target is allowed.
func (s *Server) OpenStream(target string, constraints api.FormatConstraints, opts ...stream.Option) (*stream.Bridge, error) {
	if s.closed {
		return nil, api.ErrLoopClosed
	}
	if _, dup := s.captures[target]; dup {
		return nil, api.Wrap(api.ErrAlreadyAttached, "server.OpenStream", fmt.Errorf("target %q already streaming", target))
	}
	rt, err := s.factory.CreateLoop(loop.WithDispatcher(s.events))
	if err != nil {
		return nil, err
	}
	opts = append([]stream.Option{stream.WithPool(s.pool)}, opts...)
	b, err := stream.Attach(rt, s.factory.Service(), target, constraints, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := rt.Start(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	c := &capture{target: target, rt: rt, bridge: b}
	s.captures[target] = c
	s.byLoop[rt.ID()] = c
	s.log.Info("capture stream opened", "target", target, "loop_id", rt.ID())
	return b, nil
}

// OpenSource starts a capture stream for a known registry entry.
func (s *Server) OpenSource(id uint32, constraints api.FormatConstraints, opts ...stream.Option) (*stream.Bridge, error) {
	if _, ok := s.sources.Get(id); !ok {
		return nil, api.Wrap(api.ErrInvalidArgument, "server.OpenSource", fmt.Errorf("unknown source %d", id))
	}
	return s.OpenStream(strconv.FormatUint(uint64(id), 10), constraints, opts...)
}

// Streams returns the targets with an open capture stream.
func (s *Server) Streams() []string {
	out := make([]string, 0, len(s.captures))
	for t := range s.captures {
		out = append(out, t)
	}
	return out
}

// CloseStream stops and releases the capture stream for target.
func (s *Server) CloseStream(target string) error {
	c, ok := s.captures[target]
	if !ok {
		return nil
	}
	delete(s.captures, target)
	err := c.rt.Close()
	// Events still queued from that loop are delivered on the next Tick.
	delete(s.byLoop, c.rt.ID())
	s.log.Info("capture stream closed", "target", target)
	return err
}

// Close stops every loop, releases undelivered frames and closes the queue.
// The factory stays initialized; call its Shutdown afterwards.
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for target := range s.captures {
		if err := s.CloseStream(target); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.registryLoop.Close(); err != nil {
		errs = append(errs, fmt.Errorf("registry loop: %w", err))
	}
	s.events.Close()
	s.log.Info("server closed")
	return errors.Join(errs...)
}
