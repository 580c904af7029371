// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the loop runtime, the bridges and the factory.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInit
	ErrCodeAlreadyRunning
	ErrCodeLoopStopped
	ErrCodeAlreadyAttached
	ErrCodeListenerUnavailable
	ErrCodeStreamUnavailable
	ErrCodeIterationFault
	ErrCodeFormatRejected
	ErrCodeNotInitialized
	ErrCodeLiveRuntimes
	ErrCodeQueueFull
	ErrCodeLoopClosed
	ErrCodeLoopBusy
	ErrCodeInLoopThread
	ErrCodeInvalidArgument
	ErrCodeNotSupported
)

// Sentinel errors. Match with errors.Is; wrapped errors compare by code.
var (
	ErrInit                = &Error{Code: ErrCodeInit, Message: "native loop or connection could not be allocated"}
	ErrAlreadyRunning      = &Error{Code: ErrCodeAlreadyRunning, Message: "loop already running"}
	ErrLoopStopped         = &Error{Code: ErrCodeLoopStopped, Message: "loop stopped"}
	ErrAlreadyAttached     = &Error{Code: ErrCodeAlreadyAttached, Message: "attachment already present"}
	ErrListenerUnavailable = &Error{Code: ErrCodeListenerUnavailable, Message: "registry listener unavailable"}
	ErrStreamUnavailable   = &Error{Code: ErrCodeStreamUnavailable, Message: "stream unavailable"}
	ErrIterationFault      = &Error{Code: ErrCodeIterationFault, Message: "loop iteration failed"}
	ErrFormatRejected      = &Error{Code: ErrCodeFormatRejected, Message: "format proposal rejected"}
	ErrNotInitialized      = &Error{Code: ErrCodeNotInitialized, Message: "factory not initialized"}
	ErrLiveRuntimes        = &Error{Code: ErrCodeLiveRuntimes, Message: "loop runtimes still alive"}
	ErrQueueFull           = &Error{Code: ErrCodeQueueFull, Message: "invoke queue full"}
	ErrLoopClosed          = &Error{Code: ErrCodeLoopClosed, Message: "loop closed"}
	ErrLoopBusy            = &Error{Code: ErrCodeLoopBusy, Message: "loop is being iterated"}
	ErrInLoopThread        = &Error{Code: ErrCodeInLoopThread, Message: "operation not allowed from the loop thread"}
	ErrInvalidArgument     = &Error{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrNotSupported        = &Error{Code: ErrCodeNotSupported, Message: "operation not supported"}
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Op      string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap derives an error of the sentinel's class for op, caused by err.
func Wrap(sentinel *Error, op string, err error) *Error {
	return &Error{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Op:      op,
		Err:     err,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}
