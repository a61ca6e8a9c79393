// File: reactor/select_backend.go
// Author: momentics <momentics@gmail.com>
//
// api.Backend over the poll(2) Selector, adding deadlines and one-shot callbacks.

package reactor

import (
	"errors"
	"time"

	"github.com/momentics/hioload-sockets/api"
)

type selectRegistration struct {
	reg api.Registration
	id  uint64
}

// Fd makes the registration a selector handle.
func (r *selectRegistration) Fd() int {
	return r.reg.Fd
}

// SelectBackend multiplexes registrations with a Selector. Not safe for
// concurrent use; callbacks run inside Wait.
type SelectBackend struct {
	selector *Selector
	regs     map[any]*selectRegistration
	order    []*selectRegistration
	nextID   uint64
	closed   bool
}

var _ api.Backend = (*SelectBackend)(nil)

// NewSelectBackend creates an empty backend.
func NewSelectBackend() *SelectBackend {
	return &SelectBackend{
		selector: NewSelector(),
		regs:     make(map[any]*selectRegistration),
	}
}

// NewSelectFactory returns a factory producing SelectBackend instances.
func NewSelectFactory() api.BackendFactory {
	return func() (api.Backend, error) {
		return NewSelectBackend(), nil
	}
}

func (b *SelectBackend) Register(reg api.Registration) error {
	if b.closed {
		return api.NewError(api.ErrCodeInvalidState, "backend is closed")
	}
	if err := validateRegistration(reg); err != nil {
		return err
	}
	b.remove(reg.Key)

	b.nextID++
	r := &selectRegistration{reg: reg, id: b.nextID}
	if reg.Interest != api.InterestNone {
		if err := b.selector.AddInterest(r, reg.Interest); err != nil {
			return err
		}
	}
	b.regs[reg.Key] = r
	b.order = append(b.order, r)
	return nil
}

func (b *SelectBackend) Unregister(key any) error {
	b.remove(key)
	return nil
}

func (b *SelectBackend) remove(key any) {
	r, ok := b.regs[key]
	if !ok {
		return
	}
	delete(b.regs, key)
	if b.selector.Has(r) {
		_ = b.selector.RemoveAll(r)
	}
	for i, o := range b.order {
		if o == r {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *SelectBackend) Len() int {
	return len(b.regs)
}

// Wait probes once, bounded by the nearest deadline, then fires ready and
// expired registrations in registration order.
func (b *SelectBackend) Wait() error {
	if b.closed {
		return api.NewError(api.ErrCodeInvalidState, "backend is closed")
	}
	if len(b.regs) == 0 {
		return api.NewError(api.ErrCodeInvalidState, "nothing to wait for")
	}

	timeout := nearestTimeout(b.order, func(r *selectRegistration) time.Time { return r.reg.Deadline })
	ready := make(map[*selectRegistration]api.Readiness)
	if b.selector.Len() == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
	} else {
		res, err := b.selector.Probe(timeout)
		switch {
		case err == nil:
			for _, h := range res.Read {
				ready[h.(*selectRegistration)] |= api.ReadyRead
			}
			for _, h := range res.Write {
				ready[h.(*selectRegistration)] |= api.ReadyWrite
			}
		case errors.Is(err, api.ErrTimeout):
		default:
			return err
		}
	}

	now := time.Now()
	fired := make([]*selectRegistration, 0, len(b.order))
	readiness := make([]api.Readiness, 0, len(b.order))
	for _, r := range b.order {
		if rd, ok := ready[r]; ok {
			fired = append(fired, r)
			readiness = append(readiness, rd)
			continue
		}
		if !r.reg.Deadline.IsZero() && !now.Before(r.reg.Deadline) {
			fired = append(fired, r)
			readiness = append(readiness, api.ReadyTimeout)
		}
	}

	for i, r := range fired {
		// An earlier callback may have superseded or cancelled this one.
		if b.closed || b.regs[r.reg.Key] != r {
			continue
		}
		b.remove(r.reg.Key)
		r.reg.Callback(readiness[i])
	}
	return nil
}

// Close drops every registration. Pending callbacks never fire afterwards.
func (b *SelectBackend) Close() error {
	b.closed = true
	b.regs = make(map[any]*selectRegistration)
	b.order = nil
	b.selector = NewSelector()
	return nil
}

func validateRegistration(reg api.Registration) error {
	switch {
	case reg.Key == nil:
		return api.NewError(api.ErrCodeConfiguration, "registration without key")
	case reg.Callback == nil:
		return api.NewError(api.ErrCodeConfiguration, "registration without callback")
	case reg.Interest&^(api.InterestRead|api.InterestWrite) != 0:
		return api.NewError(api.ErrCodeConfiguration, "invalid interest").WithContext("interest", reg.Interest.String())
	case reg.Interest == api.InterestNone && reg.Deadline.IsZero():
		return api.NewError(api.ErrCodeConfiguration, "registration without interest needs a deadline")
	case reg.Interest != api.InterestNone && reg.Fd < 0:
		return api.NewError(api.ErrCodeConfiguration, "registration without descriptor")
	}
	return nil
}

// nearestTimeout returns the time left until the earliest deadline, -1 when no
// item carries one.
func nearestTimeout[T any](items []T, deadline func(T) time.Time) time.Duration {
	var nearest time.Time
	for _, it := range items {
		d := deadline(it)
		if d.IsZero() {
			continue
		}
		if nearest.IsZero() || d.Before(nearest) {
			nearest = d
		}
	}
	if nearest.IsZero() {
		return -1
	}
	left := time.Until(nearest)
	if left < 0 {
		return 0
	}
	return left
}
