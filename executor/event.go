// File: executor/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Events delivered to handlers.

package executor

import (
	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/frame"
	"github.com/momentics/hioload-sockets/socket"
)

// Event is passed to every handler. Read and Write events are *IoEvent,
// Exception events are *ExceptionEvent.
type Event interface {
	Kind() api.EventKind
	Executor() *RequestExecutor
	Socket() *socket.Socket
	// Context returns the user context stored in the socket metadata.
	Context() any
	// SetContext replaces the user context immediately.
	SetContext(v any)
	// Stop closes and finalizes the socket once dispatch returns.
	Stop()
}

// BaseEvent is the plain event used for Initialize, Connected, Disconnected,
// Finalize and Timeout.
type BaseEvent struct {
	kind api.EventKind
	exec *RequestExecutor
	en   *entry
}

var _ Event = (*BaseEvent)(nil)

func (e *BaseEvent) Kind() api.EventKind        { return e.kind }
func (e *BaseEvent) Executor() *RequestExecutor { return e.exec }
func (e *BaseEvent) Socket() *socket.Socket     { return e.en.sock }
func (e *BaseEvent) Context() any               { return e.en.meta.UserContext }
func (e *BaseEvent) SetContext(v any)           { e.en.meta.UserContext = v }
func (e *BaseEvent) Stop()                      { e.en.stop = true }

type directive int

const (
	directiveNone directive = iota
	directiveRead
	directiveWrite
	directiveSame
	directiveNotRequired
)

// IoEvent carries a completed read or write and lets handlers pick the next
// operation. Without a directive the socket is closed.
type IoEvent struct {
	BaseEvent
	frame frame.Frame
	data  []byte

	next       directive
	nextPicker frame.PickerFactory
	nextData   []byte
}

// Frame returns the frame read, nil for Write events.
func (e *IoEvent) Frame() frame.Frame { return e.frame }

// Data returns the raw bytes read or the payload written.
func (e *IoEvent) Data() []byte { return e.data }

// NextIsRead schedules a read with a fresh picker from factory.
func (e *IoEvent) NextIsRead(factory frame.PickerFactory) {
	e.next = directiveRead
	e.nextPicker = factory
}

// NextIsWrite schedules a write of data.
func (e *IoEvent) NextIsWrite(data []byte) {
	e.next = directiveWrite
	e.nextData = data
}

// NextIsSame repeats the current operation.
func (e *IoEvent) NextIsSame() {
	e.next = directiveSame
}

// NextOperationNotRequired ends the request; the socket gets disconnected.
func (e *IoEvent) NextOperationNotRequired() {
	e.next = directiveNotRequired
}

// ExceptionEvent reports err raised while processing Original.
type ExceptionEvent struct {
	BaseEvent
	err      error
	original Event
}

// Err returns the cause.
func (e *ExceptionEvent) Err() error { return e.err }

// Original returns the event that was being processed.
func (e *ExceptionEvent) Original() Event { return e.original }

// OriginalKind is the kind of Original.
func (e *ExceptionEvent) OriginalKind() api.EventKind { return e.original.Kind() }
