//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallbacks for platforms without epoll.

package reactor

import "github.com/momentics/hioload-sockets/api"

// EpollReactor is unavailable on this platform.
type EpollReactor struct{}

// NewEpollReactor returns ErrNotSupported outside Linux.
func NewEpollReactor() (*EpollReactor, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "epoll is only available on linux")
}

// NewEpollFactory returns a factory that always fails outside Linux.
func NewEpollFactory() api.BackendFactory {
	return func() (api.Backend, error) {
		_, err := NewEpollReactor()
		return nil, err
	}
}

func newPlatformBackend() (api.Backend, error) {
	return NewSelectBackend(), nil
}

func platformBackendName() string {
	return BackendSelect
}
