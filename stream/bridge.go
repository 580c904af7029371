// Package stream
// Author: momentics <momentics@gmail.com>
//
// Stream Bridge: one capture stream bound to a loop runtime. Format proposals
// and buffers are handled on the loop worker; the host sees FormatChanged and
// FrameReady events, or a zero-copy consumer call on the worker.

package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync/atomic"

	"github.com/momentics/hioload-pw/api"
	"github.com/momentics/hioload-pw/control"
	"github.com/momentics/hioload-pw/loop"
	"github.com/momentics/hioload-pw/pool"
)

// Consumer receives a read-only view of a frame on the loop worker. The view
// is only valid during the call.
type Consumer func(view []byte, format api.StreamFormat)

// Option customizes Attach.
type Option func(*options)

type options struct {
	consumer Consumer
	pool     *pool.FramePool
	props    map[string]string
	name     string
}

// WithConsumer delivers frames to fn on the worker instead of posting FrameReady.
func WithConsumer(fn Consumer) Option {
	return func(o *options) { o.consumer = fn }
}

// WithPool sets the pool frame copies are taken from.
func WithPool(p *pool.FramePool) Option {
	return func(o *options) { o.pool = p }
}

// WithProperties overrides or extends DefaultProperties.
func WithProperties(props map[string]string) Option {
	return func(o *options) { maps.Copy(o.props, props) }
}

// WithName sets the stream name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Bridge is an attached capture stream.
type Bridge struct {
	rt          *loop.Runtime
	log         *slog.Logger
	metrics     *control.Metrics
	target      string
	constraints api.FormatConstraints
	consumer    Consumer
	pool        *pool.FramePool

	core   api.Core
	stream api.Stream
	hook   api.Hook

	format atomic.Pointer[api.StreamFormat]
	seq    uint64 // worker only
}

// Attach creates a capture stream on rt's native loop and connects it to
// target (api.TargetAny lets the service choose) within constraints.
// The runtime must be idle. Service refusals are api.ErrStreamUnavailable.
func Attach(rt *loop.Runtime, svc api.Service, target string, constraints api.FormatConstraints, opts ...Option) (*Bridge, error) {
	if err := constraints.Validate(); err != nil {
		return nil, err
	}
	o := options{props: DefaultProperties(), name: DefaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pool == nil {
		o.pool = pool.NewFramePool(4)
	}
	b := &Bridge{
		rt:          rt,
		log:         rt.Logger().With("kind", loop.KindStream, "target", target),
		metrics:     rt.Metrics(),
		target:      target,
		constraints: constraints,
		consumer:    o.consumer,
		pool:        o.pool,
	}
	err := rt.Attach(loop.KindStream, func(l api.Loop) (io.Closer, error) {
		core, err := svc.Connect(l, nil)
		if err != nil {
			return nil, api.Wrap(api.ErrStreamUnavailable, "stream.Attach", fmt.Errorf("connect: %w", err))
		}
		st, err := core.NewStream(o.name, o.props)
		if err != nil {
			_ = core.Disconnect()
			return nil, api.Wrap(api.ErrStreamUnavailable, "stream.Attach", fmt.Errorf("new stream: %w", err))
		}
		hook, err := st.AddListener(api.StreamEvents{
			ParamChanged: b.paramChanged,
			Process:      b.process,
		})
		if err != nil {
			_ = st.Destroy()
			_ = core.Disconnect()
			return nil, api.Wrap(api.ErrStreamUnavailable, "stream.Attach", fmt.Errorf("add listener: %w", err))
		}
		b.core, b.stream, b.hook = core, st, hook

		flags := api.StreamFlagAutoconnect | api.StreamFlagMapBuffers
		if err := st.Connect(api.DirectionInput, target, flags, constraints); err != nil {
			_ = b.Close()
			return nil, api.Wrap(api.ErrStreamUnavailable, "stream.Attach", fmt.Errorf("connect stream: %w", err))
		}
		b.log.Debug("capture stream attached", "name", o.name)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Target returns the requested source.
func (b *Bridge) Target() string { return b.target }

// Format returns the negotiated format. ok is false until the service confirmed one.
func (b *Bridge) Format() (f api.StreamFormat, ok bool) {
	if p := b.format.Load(); p != nil {
		return *p, true
	}
	return api.StreamFormat{}, false
}

func (b *Bridge) paramChanged(id api.ParamType, f *api.StreamFormat) {
	if id != api.ParamFormat {
		return
	}
	if f == nil {
		if b.format.Swap(nil) != nil {
			b.log.Info("format cleared")
		}
		return
	}
	if f.MediaType != api.MediaTypeVideo || f.MediaSubtype != api.MediaSubtypeRaw || !b.constraints.Accepts(*f) {
		b.metrics.FormatRejected()
		b.log.Debug("format proposal ignored", "format", f.String(), "error", api.ErrFormatRejected)
		return
	}
	negotiated := *f
	b.format.Store(&negotiated)
	b.log.Info("format negotiated", "format", negotiated.String())
	b.rt.Post(api.FormatChanged(negotiated))
}

func (b *Bridge) process() {
	buf := b.stream.DequeueBuffer()
	if buf == nil {
		b.skip("no_buffer")
		return
	}
	defer b.stream.QueueBuffer(buf)

	f := b.format.Load()
	if f == nil {
		b.skip("no_format")
		return
	}
	view := chunkView(buf)
	if len(view) == 0 {
		b.skip("empty")
		return
	}
	b.metrics.Frame()
	if b.consumer != nil {
		b.consumer(view, *f)
		return
	}
	data := b.pool.Get(len(view))
	copy(data, view)
	b.seq++
	b.rt.Post(api.FrameReady(api.NewFrame(data, b.seq, *f, b.pool.Put)))
}

func (b *Bridge) skip(reason string) {
	b.metrics.FrameSkipped(reason)
	b.log.Debug("frame skipped", "reason", reason)
}

// chunkView returns the valid bytes of the first data plane.
func chunkView(buf *api.Buffer) []byte {
	if len(buf.Datas) == 0 {
		return nil
	}
	d := buf.Datas[0]
	off := int(d.Chunk.Offset)
	if off >= len(d.Data) {
		return nil
	}
	end := min(off+int(d.Chunk.Size), len(d.Data))
	return d.Data[off:end]
}

// Close disconnects the stream and releases its connection. The owning runtime
// calls it after its worker has stopped; hosts close the runtime instead.
func (b *Bridge) Close() error {
	b.hook.Remove()
	return errors.Join(b.stream.Destroy(), b.core.Disconnect())
}
