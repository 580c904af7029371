// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"fmt"
	"maps"

	"github.com/momentics/hioload-pw/api"
)

// Registry is a fake capability catalog.
type Registry struct {
	svc       *Service
	loop      api.Loop
	listener  *api.RegistryEvents
	destroyed bool
}

func (r *Registry) AddListener(events api.RegistryEvents) (api.Hook, error) {
	r.svc.mu.Lock()
	defer r.svc.mu.Unlock()
	if r.svc.ListenerErr != nil {
		return nil, r.svc.ListenerErr
	}
	if r.listener != nil {
		return nil, fmt.Errorf("fake: registry listener already set")
	}
	r.listener = &events
	r.svc.registrations++
	return hookFunc(func() {
		r.svc.mu.Lock()
		r.listener = nil
		r.svc.registrations--
		r.svc.mu.Unlock()
	}), nil
}

func (r *Registry) Destroy() error {
	r.svc.mu.Lock()
	defer r.svc.mu.Unlock()
	r.destroyed = true
	return nil
}

// Destroyed reports whether Destroy ran.
func (r *Registry) Destroyed() bool {
	r.svc.mu.Lock()
	defer r.svc.mu.Unlock()
	return r.destroyed
}

func (r *Registry) events() *api.RegistryEvents {
	r.svc.mu.Lock()
	defer r.svc.mu.Unlock()
	return r.listener
}

// Add announces a global object on the loop thread.
func (r *Registry) Add(id uint32, typ string, version uint32, props map[string]string) error {
	props = maps.Clone(props)
	return r.loop.Invoke(func() {
		if ev := r.events(); ev != nil && ev.Global != nil {
			ev.Global(id, PermAll, typ, version, props)
		}
	})
}

// Remove announces the removal of a global object on the loop thread.
func (r *Registry) Remove(id uint32) error {
	return r.loop.Invoke(func() {
		if ev := r.events(); ev != nil && ev.GlobalRemove != nil {
			ev.GlobalRemove(id)
		}
	})
}
