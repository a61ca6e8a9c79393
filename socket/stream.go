// File: socket/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Byte-stream contract the socket state machine drives, plus address parsing.

package socket

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/momentics/hioload-sockets/api"
)

// ErrWouldBlock is returned by Stream.Peek and Stream.Read when no data is
// available yet on a non-blocking stream.
var ErrWouldBlock = errors.New("operation would block")

// Stream is an opened OS byte stream. Implementations must be non-blocking
// friendly: Peek and Read return ErrWouldBlock rather than waiting when the
// stream is in non-blocking mode.
type Stream interface {
	// Fd returns the descriptor used for readiness notification.
	Fd() int

	// Peek copies available bytes without consuming them. (0, nil) means the
	// remote side closed the stream.
	Peek(p []byte) (int, error)

	// Read consumes available bytes. (0, nil) means the remote side closed.
	Read(p []byte) (int, error)

	// Write writes as much of p as the stream accepts right now.
	Write(p []byte) (int, error)

	// PeerName fails when the stream is no longer connected to a peer.
	PeerName() (string, error)

	// SocketError returns the pending asynchronous error, if any.
	SocketError() error

	// SetBlocking switches blocking mode.
	SetBlocking(blocking bool) error

	// WaitReady blocks up to timeout for the given interest and reports
	// whether the stream became ready.
	WaitReady(interest api.Interest, timeout time.Duration) (bool, error)

	// Close shuts the stream down in both directions and releases it.
	Close() error
}

// Dialer produces opened streams. The connect may still be in progress when
// Dial returns; completion is signalled by write readiness.
type Dialer interface {
	Dial(address string) (Stream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(address string) (Stream, error)

func (f DialerFunc) Dial(address string) (Stream, error) {
	return f(address)
}

// ParseAddress splits transport://host:port. A missing scheme means tcp.
func ParseAddress(address string) (network, host string, err error) {
	if address == "" {
		return "", "", api.NewError(api.ErrCodeConfiguration, "empty address")
	}
	network, host, found := strings.Cut(address, "://")
	if !found {
		network, host = "tcp", address
	}
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return "", "", api.NewError(api.ErrCodeConfiguration,
			fmt.Sprintf("unsupported transport %q", network)).WithContext("address", address)
	}
	if host == "" {
		return "", "", api.NewError(api.ErrCodeConfiguration, "empty host").WithContext("address", address)
	}
	return network, host, nil
}

// PollTimeoutMs converts a timeout to poll(2) milliseconds, rounding up so a
// sub-millisecond budget still waits. Negative means infinite.
func PollTimeoutMs(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
