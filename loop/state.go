// File: loop/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

// State is the worker lifecycle of a Runtime.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Kind names an attachment slot. A runtime holds at most one attachment per kind.
type Kind string

const (
	KindRegistry Kind = "registry"
	KindStream   Kind = "stream"
)
