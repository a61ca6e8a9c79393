//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

// File: socket/stream_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without BSD socket descriptors.

package socket

import "github.com/momentics/hioload-sockets/api"

// UnixDialer is unavailable on this platform.
type UnixDialer struct{}

func (UnixDialer) Dial(address string) (Stream, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "socket: this platform is not supported")
}

// NewFDStream is unavailable on this platform.
func NewFDStream(fd int) Stream {
	panic("socket: this platform is not supported")
}
