// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"

	"github.com/momentics/hioload-sockets/api"
)

// Backend is an always-ready api.Backend. Every Wait fires all registrations:
// readiness for their interest, or a timeout for deadline-only entries.
type Backend struct {
	mu      sync.Mutex
	regs    map[any]api.Registration
	order   []any
	waitErr error
	waits   int
	closed  bool
}

var _ api.Backend = (*Backend)(nil)

// NewBackend creates an empty fake backend.
func NewBackend() *Backend {
	return &Backend{regs: make(map[any]api.Registration)}
}

// Factory returns an api.BackendFactory serving b.
func (b *Backend) Factory() api.BackendFactory {
	return func() (api.Backend, error) { return b, nil }
}

func (b *Backend) Register(reg api.Registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg.Key == nil || reg.Callback == nil {
		return api.NewError(api.ErrCodeConfiguration, "invalid registration")
	}
	if _, ok := b.regs[reg.Key]; !ok {
		b.order = append(b.order, reg.Key)
	}
	b.regs[reg.Key] = reg
	return nil
}

func (b *Backend) Unregister(key any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(key)
	return nil
}

func (b *Backend) remove(key any) {
	if _, ok := b.regs[key]; !ok {
		return
	}
	delete(b.regs, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *Backend) Wait() error {
	b.mu.Lock()
	b.waits++
	if b.waitErr != nil {
		err := b.waitErr
		b.mu.Unlock()
		return err
	}
	if len(b.regs) == 0 {
		b.mu.Unlock()
		return api.NewError(api.ErrCodeInvalidState, "no registrations")
	}
	fired := make([]api.Registration, 0, len(b.order))
	for _, k := range b.order {
		fired = append(fired, b.regs[k])
	}
	b.regs = make(map[any]api.Registration)
	b.order = nil
	b.mu.Unlock()

	for _, reg := range fired {
		var r api.Readiness
		if reg.Interest&api.InterestRead != 0 {
			r |= api.ReadyRead
		}
		if reg.Interest&api.InterestWrite != 0 {
			r |= api.ReadyWrite
		}
		if r == 0 {
			r = api.ReadyTimeout
		}
		reg.Callback(r)
	}
	return nil
}

func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.regs)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.regs = make(map[any]api.Registration)
	b.order = nil
	return nil
}

// SetWaitError makes every following Wait fail with err.
func (b *Backend) SetWaitError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitErr = err
}

// Waits returns the number of Wait calls.
func (b *Backend) Waits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waits
}

// IsClosed reports whether Close was called.
func (b *Backend) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
