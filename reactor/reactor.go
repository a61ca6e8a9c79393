// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Backend selection by name and the platform default.

package reactor

import (
	"github.com/momentics/hioload-sockets/api"
)

// Backend names accepted by FactoryByName.
const (
	BackendAuto   = "auto"
	BackendEpoll  = "epoll"
	BackendSelect = "select"
)

// NewDefaultBackend returns epoll on Linux and the poll(2) selector elsewhere.
func NewDefaultBackend() (api.Backend, error) {
	return newPlatformBackend()
}

// DefaultFactory is the api.BackendFactory for NewDefaultBackend.
func DefaultFactory() api.BackendFactory {
	return NewDefaultBackend
}

// DefaultBackendName names the backend NewDefaultBackend builds.
func DefaultBackendName() string {
	return platformBackendName()
}

// FactoryByName resolves a configured backend name. An empty name means auto.
func FactoryByName(name string) (api.BackendFactory, error) {
	switch name {
	case "", BackendAuto:
		return DefaultFactory(), nil
	case BackendEpoll:
		return NewEpollFactory(), nil
	case BackendSelect:
		return NewSelectFactory(), nil
	}
	return nil, api.NewError(api.ErrCodeConfiguration, "unknown backend").WithContext("backend", name)
}
