// Package fake
// Author: momentics <momentics@gmail.com>
//
// In-process media service for tests and synthetic event injection.
// Callbacks reach listeners through the bound loop's Invoke, so they run on the
// loop worker exactly like the real service's.

package fake

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/momentics/hioload-pw/api"
)

// PermAll is the permission mask announced for injected objects (r, w, x, m).
const PermAll = 0o0710

// Service is a fake api.Service. Set the *Err fields before use to make the
// corresponding call fail.
type Service struct {
	InitErr          error
	ConnectErr       error
	RegistryErr      error
	ListenerErr      error
	StreamErr        error
	StreamConnectErr error

	mu            sync.Mutex
	inits         int
	deinits       int
	connects      int
	registrations int
	registries    []*Registry
	streams       []*Stream
}

var _ api.Service = (*Service)(nil)

// NewService returns a fake service that accepts everything.
func NewService() *Service { return &Service{} }

func (s *Service) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InitErr != nil {
		return s.InitErr
	}
	s.inits++
	return nil
}

func (s *Service) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deinits++
	return nil
}

func (s *Service) Connect(loop api.Loop, props map[string]string) (api.Core, error) {
	if loop == nil {
		return nil, errors.New("fake: nil loop")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConnectErr != nil {
		return nil, s.ConnectErr
	}
	s.connects++
	return &Core{svc: s, loop: loop, props: maps.Clone(props)}, nil
}

// Inits returns how many times Init succeeded.
func (s *Service) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

// Deinits returns how many times Deinit ran.
func (s *Service) Deinits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deinits
}

// Connects returns how many cores were opened.
func (s *Service) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Registrations counts listeners and streams registered with the service.
func (s *Service) Registrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registrations
}

// Registry returns the most recently created registry, or nil.
func (s *Service) Registry() *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.registries) == 0 {
		return nil
	}
	return s.registries[len(s.registries)-1]
}

// Stream returns the most recently created stream, or nil.
func (s *Service) Stream() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

// Core is one fake connection.
type Core struct {
	svc          *Service
	loop         api.Loop
	props        map[string]string
	disconnected bool
}

func (c *Core) GetRegistry() (api.Registry, error) {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if c.svc.RegistryErr != nil {
		return nil, c.svc.RegistryErr
	}
	r := &Registry{svc: c.svc, loop: c.loop}
	c.svc.registries = append(c.svc.registries, r)
	return r, nil
}

func (c *Core) NewStream(name string, props map[string]string) (api.Stream, error) {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if c.svc.StreamErr != nil {
		return nil, c.svc.StreamErr
	}
	st := &Stream{svc: c.svc, loop: c.loop, name: name, props: maps.Clone(props)}
	c.svc.streams = append(c.svc.streams, st)
	return st, nil
}

func (c *Core) Disconnect() error {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if c.disconnected {
		return fmt.Errorf("fake: core disconnected twice")
	}
	c.disconnected = true
	return nil
}

type hookFunc func()

func (h hookFunc) Remove() { h() }
