// File: api/events.go
// Package api defines the closed set of socket lifecycle event kinds.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "fmt"

// EventKind identifies a socket lifecycle event.
type EventKind int

const (
	// EventInitialize is the first event for a socket. Handlers may set the
	// address and user context here.
	EventInitialize EventKind = iota
	// EventConnected fires on the first readiness after the connect completed.
	EventConnected
	// EventRead fires once a complete frame has been read.
	EventRead
	// EventWrite fires once the pending payload has been fully written.
	EventWrite
	// EventDisconnected fires after the stream of a connected socket is closed.
	EventDisconnected
	// EventFinalize is the last event for a socket, fired even after errors.
	EventFinalize
	// EventTimeout fires when a connect or io deadline elapses.
	EventTimeout
	// EventException carries an error raised while processing another event.
	EventException

	numEventKinds
)

// EventKinds lists every kind in dispatch-table order.
func EventKinds() []EventKind {
	kinds := make([]EventKind, 0, numEventKinds)
	for k := EventInitialize; k < numEventKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	return k >= EventInitialize && k < numEventKinds
}

func (k EventKind) String() string {
	switch k {
	case EventInitialize:
		return "initialize"
	case EventConnected:
		return "connected"
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventDisconnected:
		return "disconnected"
	case EventFinalize:
		return "finalize"
	case EventTimeout:
		return "timeout"
	case EventException:
		return "exception"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}
