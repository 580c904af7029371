// Package publish
// Author: momentics <momentics@gmail.com>
//
// Republishes drained bridge events on NATS. Payloads are msgpack encoded;
// subjects are <prefix>.registry.added, <prefix>.registry.removed,
// <prefix>.stream.format and <prefix>.stream.frame.

package publish

import (
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/momentics/hioload-pw/api"
)

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// RegistryMessage is published for registry additions and removals.
type RegistryMessage struct {
	Loop  string             `msgpack:"loop"`
	ID    uint32             `msgpack:"id"`
	Entry *api.RegistryEntry `msgpack:"entry,omitempty"`
}

// FormatMessage is published when a stream negotiated a format.
type FormatMessage struct {
	Loop   string           `msgpack:"loop"`
	Format api.StreamFormat `msgpack:"format"`
}

// FrameMessage carries one frame copy.
type FrameMessage struct {
	Loop   string           `msgpack:"loop"`
	Seq    uint64           `msgpack:"seq"`
	Size   int              `msgpack:"size"`
	Format api.StreamFormat `msgpack:"format"`
	Data   []byte           `msgpack:"data,omitempty"`
}

// Option customizes a Sink.
type Option func(*Sink)

// WithLogger sets the sink logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.log = l }
}

// WithFrameData controls whether frame payloads are included. Metadata is
// always published.
func WithFrameData(on bool) Option {
	return func(s *Sink) { s.frameData = on }
}

// Sink publishes events. Handle matches server.Sink.
type Sink struct {
	pub       Publisher
	prefix    string
	log       *slog.Logger
	frameData bool

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewSink publishes through pub under prefix.
func NewSink(pub Publisher, prefix string, opts ...Option) *Sink {
	s := &Sink{pub: pub, prefix: prefix, log: slog.Default(), frameData: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle publishes ev. Failures are logged and counted, never returned: the
// host keeps draining regardless of the broker.
func (s *Sink) Handle(ev api.Event) {
	var (
		suffix string
		msg    any
	)
	switch ev.Kind {
	case api.EventRegistryAdded:
		entry := ev.Entry
		suffix, msg = "registry.added", RegistryMessage{Loop: ev.Loop, ID: ev.Entry.ID, Entry: &entry}
	case api.EventRegistryRemoved:
		suffix, msg = "registry.removed", RegistryMessage{Loop: ev.Loop, ID: ev.ID}
	case api.EventFormatChanged:
		suffix, msg = "stream.format", FormatMessage{Loop: ev.Loop, Format: ev.Format}
	case api.EventFrameReady:
		if ev.Frame == nil {
			return
		}
		fm := FrameMessage{Loop: ev.Loop, Seq: ev.Frame.Seq, Size: ev.Frame.Size, Format: ev.Frame.Format}
		if s.frameData {
			fm.Data = ev.Frame.Data
		}
		suffix, msg = "stream.frame", fm
	default:
		return
	}

	subject := s.prefix + "." + suffix
	data, err := msgpack.Marshal(msg)
	if err != nil {
		s.failed.Add(1)
		s.log.Warn("encode event", "subject", subject, "error", err)
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.failed.Add(1)
		s.log.Warn("publish event", "subject", subject, "error", err)
		return
	}
	s.published.Add(1)
}

// Published returns the number of events published.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns the number of events that could not be published.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Connect dials the NATS server at url, reconnecting forever.
func Connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{nats.Name(name), nats.MaxReconnects(-1)}, opts...)
	return nats.Connect(url, opts...)
}
