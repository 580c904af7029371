// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/pool"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records drained events.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPool shares p between all capture streams.
func WithPool(p *pool.FramePool) Option {
	return func(s *Server) { s.pool = p }
}

// WithScheduler is called from a loop worker whenever events become pending.
// It must only arrange for Tick to run later on the host goroutine.
func WithScheduler(fn func()) Option {
	return func(s *Server) { s.schedule = fn }
}

// WithLivenessInterval sets how often Run checks loop liveness without events.
func WithLivenessInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.liveness = d
		}
	}
}
