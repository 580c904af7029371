// Package registry
// Author: momentics <momentics@gmail.com>
//
// Registry Bridge: binds a registry listener to a loop runtime and turns its
// callbacks into deferred events. Callbacks run on the loop worker and never lock.

package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/loop"
)

// Option customizes Attach.
type Option func(*options)

type options struct {
	props map[string]string
}

// WithProperties passes connection properties to the service.
func WithProperties(props map[string]string) Option {
	return func(o *options) { o.props = maps.Clone(props) }
}

type bridge struct {
	rt   *loop.Runtime
	log  *slog.Logger
	core api.Core
	reg  api.Registry
	hook api.Hook
}

// Attach registers a registry listener on rt's native loop. The runtime must be
// idle: a started runtime yields api.ErrAlreadyRunning and the service is never
// contacted. Service failures are reported as api.ErrListenerUnavailable.
func Attach(rt *loop.Runtime, svc api.Service, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return rt.Attach(loop.KindRegistry, func(l api.Loop) (io.Closer, error) {
		b := &bridge{rt: rt, log: rt.Logger().With("kind", loop.KindRegistry)}

		core, err := svc.Connect(l, o.props)
		if err != nil {
			return nil, api.Wrap(api.ErrListenerUnavailable, "registry.Attach", fmt.Errorf("connect: %w", err))
		}
		reg, err := core.GetRegistry()
		if err != nil {
			_ = core.Disconnect()
			return nil, api.Wrap(api.ErrListenerUnavailable, "registry.Attach", fmt.Errorf("get registry: %w", err))
		}
		hook, err := reg.AddListener(api.RegistryEvents{
			Global:       b.global,
			GlobalRemove: b.globalRemove,
		})
		if err != nil {
			_ = reg.Destroy()
			_ = core.Disconnect()
			return nil, api.Wrap(api.ErrListenerUnavailable, "registry.Attach", fmt.Errorf("add listener: %w", err))
		}
		b.core, b.reg, b.hook = core, reg, hook
		b.log.Debug("registry listener attached")
		return b, nil
	})
}

func (b *bridge) global(id, permissions uint32, typ string, version uint32, props map[string]string) {
	b.rt.Post(api.RegistryAdded(api.RegistryEntry{
		ID:          id,
		Type:        typ,
		Version:     version,
		Permissions: permissions,
		Props:       maps.Clone(props),
	}))
}

func (b *bridge) globalRemove(id uint32) {
	b.rt.Post(api.RegistryRemoved(id))
}

// Close detaches the listener and releases the registry and its connection.
func (b *bridge) Close() error {
	b.hook.Remove()
	return errors.Join(b.reg.Destroy(), b.core.Disconnect())
}
