// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"fmt"
	"maps"

	"github.com/momentics/hioload-pw/api"
)

// Stream is a fake capture stream. Buffers pushed by the test are handed out
// by DequeueBuffer and counted back by QueueBuffer.
type Stream struct {
	svc   *Service
	loop  api.Loop
	name  string
	props map[string]string

	listener  *api.StreamEvents
	connected bool
	dir       api.Direction
	target    string
	flags     api.StreamFlags
	params    api.FormatConstraints
	destroyed bool

	ready       []*api.Buffer
	outstanding int
	requeued    int
}

func (s *Stream) AddListener(events api.StreamEvents) (api.Hook, error) {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if s.listener != nil {
		return nil, fmt.Errorf("fake: stream listener already set")
	}
	s.listener = &events
	s.svc.registrations++
	return hookFunc(func() {
		s.svc.mu.Lock()
		s.listener = nil
		s.svc.registrations--
		s.svc.mu.Unlock()
	}), nil
}

func (s *Stream) Connect(dir api.Direction, target string, flags api.StreamFlags, params api.FormatConstraints) error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if s.svc.StreamConnectErr != nil {
		return s.svc.StreamConnectErr
	}
	s.connected = true
	s.dir, s.target, s.flags, s.params = dir, target, flags, params
	return nil
}

func (s *Stream) DequeueBuffer() *api.Buffer {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if len(s.ready) == 0 {
		return nil
	}
	b := s.ready[0]
	s.ready = s.ready[1:]
	s.outstanding++
	return b
}

func (s *Stream) QueueBuffer(b *api.Buffer) {
	if b == nil {
		return
	}
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	s.outstanding--
	s.requeued++
}

func (s *Stream) Destroy() error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	s.destroyed = true
	return nil
}

// Name returns the stream name given at creation.
func (s *Stream) Name() string { return s.name }

// Props returns a copy of the creation properties.
func (s *Stream) Props() map[string]string { return maps.Clone(s.props) }

// Connection returns the arguments of the last successful Connect.
func (s *Stream) Connection() (connected bool, dir api.Direction, target string, flags api.StreamFlags, params api.FormatConstraints) {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	return s.connected, s.dir, s.target, s.flags, s.params
}

// Destroyed reports whether Destroy ran.
func (s *Stream) Destroyed() bool {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	return s.destroyed
}

// Outstanding returns buffers dequeued but not yet queued back.
func (s *Stream) Outstanding() int {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	return s.outstanding
}

// Requeued returns how many buffers were queued back.
func (s *Stream) Requeued() int {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	return s.requeued
}

func (s *Stream) events() *api.StreamEvents {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	return s.listener
}

// Propose delivers a format proposal on the loop thread.
func (s *Stream) Propose(f api.StreamFormat) error {
	return s.loop.Invoke(func() {
		if ev := s.events(); ev != nil && ev.ParamChanged != nil {
			ev.ParamChanged(api.ParamFormat, &f)
		}
	})
}

// ClearFormat withdraws the negotiated format on the loop thread.
func (s *Stream) ClearFormat() error {
	return s.loop.Invoke(func() {
		if ev := s.events(); ev != nil && ev.ParamChanged != nil {
			ev.ParamChanged(api.ParamFormat, nil)
		}
	})
}

// PushFrame queues a buffer holding data and signals process on the loop thread.
func (s *Stream) PushFrame(data []byte) error {
	return s.PushChunk(data, 0, uint32(len(data)))
}

// PushChunk queues a buffer whose valid bytes are data[offset:offset+size].
func (s *Stream) PushChunk(data []byte, offset, size uint32) error {
	b := &api.Buffer{Datas: []api.Data{{Data: data, Chunk: api.Chunk{Offset: offset, Size: size}}}}
	return s.push(b)
}

// PushEmpty queues a buffer without any valid bytes.
func (s *Stream) PushEmpty() error {
	return s.push(&api.Buffer{Datas: []api.Data{{}}})
}

// Kick signals process without queuing a buffer.
func (s *Stream) Kick() error {
	return s.push(nil)
}

func (s *Stream) push(b *api.Buffer) error {
	return s.loop.Invoke(func() {
		if b != nil {
			s.svc.mu.Lock()
			s.ready = append(s.ready, b)
			s.svc.mu.Unlock()
		}
		if ev := s.events(); ev != nil && ev.Process != nil {
			ev.Process()
		}
	})
}
