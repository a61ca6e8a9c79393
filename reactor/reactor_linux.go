//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux default backend factory.

package reactor

import "github.com/momentics/hioload-sockets/api"

func newPlatformBackend() (api.Backend, error) {
	return NewEpollReactor()
}

func platformBackendName() string {
	return BackendEpoll
}
