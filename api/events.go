// File: api/events.go
// Package api defines core event types for hioload-pw.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "sync"

// EventKind tags the payload carried by an Event.
type EventKind uint8

const (
	EventRegistryAdded EventKind = iota + 1
	EventRegistryRemoved
	EventFrameReady
	EventFormatChanged
)

func (k EventKind) String() string {
	switch k {
	case EventRegistryAdded:
		return "registry_added"
	case EventRegistryRemoved:
		return "registry_removed"
	case EventFrameReady:
		return "frame_ready"
	case EventFormatChanged:
		return "format_changed"
	default:
		return "unknown"
	}
}

// RegistryEntry describes one object announced by the service registry.
type RegistryEntry struct {
	ID          uint32            `msgpack:"id"`
	Type        string            `msgpack:"type"`
	Version     uint32            `msgpack:"version"`
	Permissions uint32            `msgpack:"permissions"`
	Props       map[string]string `msgpack:"props,omitempty"`
}

// Frame is a copy of one completed stream buffer. Data is valid until Release.
type Frame struct {
	Data   []byte
	Size   int
	Seq    uint64
	Format StreamFormat

	once    sync.Once
	release func([]byte)
}

// NewFrame wraps data; release, if set, receives data back on Release.
func NewFrame(data []byte, seq uint64, format StreamFormat, release func([]byte)) *Frame {
	return &Frame{Data: data, Size: len(data), Seq: seq, Format: format, release: release}
}

// Release returns the frame storage to its pool. Safe to call more than once.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		if f.release != nil {
			f.release(f.Data)
		}
		f.Data = nil
	})
}

// Event is a deferred notification produced on a loop worker and consumed on the host.
// Only the field matching Kind is meaningful.
type Event struct {
	Kind   EventKind
	Loop   string // id of the originating loop runtime
	Entry  RegistryEntry
	ID     uint32
	Frame  *Frame
	Format StreamFormat
}

// RegistryAdded builds an EventRegistryAdded event.
func RegistryAdded(entry RegistryEntry) Event {
	return Event{Kind: EventRegistryAdded, Entry: entry, ID: entry.ID}
}

// RegistryRemoved builds an EventRegistryRemoved event.
func RegistryRemoved(id uint32) Event {
	return Event{Kind: EventRegistryRemoved, ID: id}
}

// FrameReady builds an EventFrameReady event.
func FrameReady(f *Frame) Event {
	return Event{Kind: EventFrameReady, Frame: f}
}

// FormatChanged builds an EventFormatChanged event.
func FormatChanged(f StreamFormat) Event {
	return Event{Kind: EventFormatChanged, Format: f}
}

// Dispatcher accepts events from a loop worker for later delivery to the host.
type Dispatcher interface {
	Post(ev Event)
}
