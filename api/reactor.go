// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the readiness backend contract shared by the poll(2) selector and the
// kernel-notification (epoll) reactor.

package api

import "time"

// Interest is a set of readiness conditions a socket waits for.
type Interest uint8

const (
	InterestNone  Interest = 0
	InterestRead  Interest = 1 << 0
	InterestWrite Interest = 1 << 1
)

func (i Interest) String() string {
	switch i {
	case InterestNone:
		return "none"
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestRead | InterestWrite:
		return "read|write"
	default:
		return "invalid"
	}
}

// Readiness is what a backend reports to a registration callback.
type Readiness uint8

const (
	ReadyRead Readiness = 1 << iota
	ReadyWrite
	ReadyTimeout
	// ReadyError is reported for hang-up or error conditions on the descriptor.
	ReadyError
)

// Has reports whether all bits of r2 are set.
func (r Readiness) Has(r2 Readiness) bool {
	return r&r2 == r2
}

// Callback is invoked by a backend, inside Wait, when a registration fires.
type Callback func(r Readiness)

// Registration binds one socket to one interest, a deadline and a callback.
// Key identifies the socket; a later registration with the same key supersedes
// the earlier one. A zero Deadline means no timeout.
type Registration struct {
	Key      any
	Fd       int
	Interest Interest
	Deadline time.Time
	Callback Callback
}

// Backend multiplexes registrations over one blocking wait. Registrations are
// one-shot: once the callback fired, the registration is gone.
type Backend interface {
	// Register adds or supersedes the registration for r.Key.
	Register(r Registration) error

	// Unregister cancels the registration for key. Unknown keys are ignored.
	Unregister(key any) error

	// Wait blocks until at least one registration fired or its deadline elapsed,
	// invoking callbacks on the calling goroutine. It fails with ErrInvalidState
	// when nothing is registered and with ErrSelector when the mechanism failed.
	Wait() error

	// Len returns the number of live registrations.
	Len() int

	// Close cancels every registration and releases the backend.
	Close() error
}

// BackendFactory creates a fresh backend for one executor run.
type BackendFactory func() (Backend, error)
