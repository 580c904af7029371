// File: api/service.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts of the external media-routing service client. Implementations bind to a
// native Loop and deliver every callback on that loop's worker thread.

package api

// TargetAny lets the service auto-select the source a capture stream binds to.
const TargetAny = ""

// SourceFunc handles readiness of a file descriptor registered with a Loop.
// A non-nil error is fatal for the iteration that produced it.
type SourceFunc func() error

// Loop is the part of the native event loop that service implementations bind to.
type Loop interface {
	// Invoke runs fn on the loop thread. Safe from any goroutine; runs fn inline
	// when already on the loop thread.
	Invoke(fn func()) error
	// AddSource watches fd for readability and calls fn on the loop thread.
	AddSource(fd int, fn SourceFunc) error
	// RemoveSource stops watching fd.
	RemoveSource(fd int) error
	// InLoop reports whether the caller runs on the loop thread.
	InLoop() bool
}

// Service is the process-wide client library of the media service.
type Service interface {
	// Init initializes the client library. Called once per factory.
	Init() error
	// Deinit releases the client library after every connection is gone.
	Deinit() error
	// Connect opens a connection whose events are delivered on loop.
	Connect(loop Loop, props map[string]string) (Core, error)
}

// Core is one connection to the service.
type Core interface {
	GetRegistry() (Registry, error)
	NewStream(name string, props map[string]string) (Stream, error)
	Disconnect() error
}

// Hook is a registered listener. Remove detaches it.
type Hook interface {
	Remove()
}

// RegistryEvents are the registry callbacks. Both run on the loop thread.
type RegistryEvents struct {
	Global       func(id, permissions uint32, typ string, version uint32, props map[string]string)
	GlobalRemove func(id uint32)
}

// Registry is the service's capability catalog.
type Registry interface {
	AddListener(events RegistryEvents) (Hook, error)
	Destroy() error
}

// ParamType identifies a stream parameter.
type ParamType uint32

const (
	ParamEnumFormat ParamType = iota + 1
	ParamFormat
)

// Direction of a stream relative to this client.
type Direction uint8

const (
	DirectionInput Direction = iota
	DirectionOutput
)

// StreamFlags modify Stream.Connect.
type StreamFlags uint32

const (
	StreamFlagAutoconnect StreamFlags = 1 << iota
	StreamFlagMapBuffers
)

// StreamEvents are the stream callbacks. All run on the loop thread.
type StreamEvents struct {
	// ParamChanged reports a parameter proposal; format is nil when cleared.
	ParamChanged func(id ParamType, format *StreamFormat)
	// Process signals that a buffer may be dequeued.
	Process func()
}

// Chunk locates valid bytes within a Data region.
type Chunk struct {
	Offset uint32
	Size   uint32
	Stride int32
}

// Data is one memory region of a Buffer.
type Data struct {
	Data  []byte
	Chunk Chunk
}

// Buffer is a service-owned buffer lent between DequeueBuffer and QueueBuffer.
type Buffer struct {
	Datas []Data
	// Handle is opaque to callers; implementations use it to recycle the buffer.
	Handle any
}

// Stream is a negotiated data channel.
type Stream interface {
	AddListener(events StreamEvents) (Hook, error)
	Connect(dir Direction, target string, flags StreamFlags, params FormatConstraints) error
	// DequeueBuffer returns the next completed buffer, or nil if none is ready.
	DequeueBuffer() *Buffer
	// QueueBuffer returns b to the service's free pool.
	QueueBuffer(b *Buffer)
	Destroy() error
}
