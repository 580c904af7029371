// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"time"
)

// Tick drains pending events, then checks loop liveness. It returns how many
// events were delivered. Hosts with their own main loop call Tick from it;
// others use Run.
func (s *Server) Tick() int {
	n := s.events.Drain()
	n += s.checkLoops()
	return n
}

func (s *Server) checkLoops() int {
	if s.closed {
		return 0
	}
	n := 0
	if !s.registryDead {
		select {
		case <-s.registryLoop.Done():
			// Everything the dead worker posted is queued by now.
			n += s.events.Drain()
			s.registryDead = true
			s.sources.Freeze()
			s.log.Error("registry loop stopped unexpectedly, keeping last known sources",
				"error", s.registryLoop.Err(), "sources", s.sources.Len())
		default:
		}
	}
	for target, c := range s.captures {
		select {
		case <-c.rt.Done():
			n += s.events.Drain()
			s.log.Warn("capture loop stopped unexpectedly", "target", target, "error", c.rt.Err())
			_ = s.CloseStream(target)
		default:
		}
	}
	return n
}

// Run drains events as they arrive until ctx is done, then closes the server.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.liveness)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Tick()
			return s.Close()
		case <-s.events.Ready():
			s.Tick()
		case <-ticker.C:
			s.Tick()
		}
	}
}
