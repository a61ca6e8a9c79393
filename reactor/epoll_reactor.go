//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"sort"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/socket"
)

const maxEpollEvents = 128

type epollRegistration struct {
	reg   api.Registration
	id    uint64
	epoch uint64
	armed bool
}

// EpollReactor implements api.Backend with epoll. Each registration carries a
// fresh ID in the epoll data word and the epoch it was created in; events for
// superseded IDs or older epochs are dropped.
type EpollReactor struct {
	epfd      int
	epoch     atomic.Uint64
	closeOnce sync.Once
	closeErr  error

	nextID uint64
	regs   map[any]*epollRegistration
	byID   map[uint64]*epollRegistration
	events []unix.EpollEvent
}

var _ api.Backend = (*EpollReactor)(nil)

// NewEpollReactor creates an epoll instance.
func NewEpollReactor() (*EpollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.WrapError(api.ErrCodeSelector, "epoll create", err)
	}
	return &EpollReactor{
		epfd:   epfd,
		regs:   make(map[any]*epollRegistration),
		byID:   make(map[uint64]*epollRegistration),
		events: make([]unix.EpollEvent, maxEpollEvents),
	}, nil
}

// NewEpollFactory returns a factory producing EpollReactor instances.
func NewEpollFactory() api.BackendFactory {
	return func() (api.Backend, error) {
		return NewEpollReactor()
	}
}

// Epoch returns the current registration epoch.
func (r *EpollReactor) Epoch() uint64 {
	return r.epoch.Load()
}

func (r *EpollReactor) closed() bool {
	return r.epfd < 0
}

// Register adds reg, superseding any registration under the same key.
func (r *EpollReactor) Register(reg api.Registration) error {
	if r.closed() {
		return api.NewError(api.ErrCodeInvalidState, "reactor is closed")
	}
	if err := validateRegistration(reg); err != nil {
		return err
	}
	r.remove(reg.Key)

	r.nextID++
	er := &epollRegistration{reg: reg, id: r.nextID, epoch: r.epoch.Load()}
	if reg.Interest != api.InterestNone {
		var ev unix.EpollEvent
		if reg.Interest&api.InterestRead != 0 {
			ev.Events |= unix.EPOLLIN | unix.EPOLLRDHUP
		}
		if reg.Interest&api.InterestWrite != 0 {
			ev.Events |= unix.EPOLLOUT
		}
		*(*uint64)(unsafe.Pointer(&ev.Fd)) = er.id
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, reg.Fd, &ev); err != nil {
			return api.WrapError(api.ErrCodeSelector, "epoll ctl add", err).WithContext("fd", reg.Fd)
		}
		er.armed = true
	}
	r.regs[reg.Key] = er
	r.byID[er.id] = er
	return nil
}

// Unregister cancels the registration under key.
func (r *EpollReactor) Unregister(key any) error {
	r.remove(key)
	return nil
}

func (r *EpollReactor) remove(key any) {
	er, ok := r.regs[key]
	if !ok {
		return
	}
	delete(r.regs, key)
	delete(r.byID, er.id)
	if er.armed && !r.closed() {
		// The descriptor may already be closed, which drops it from the set.
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, er.reg.Fd, nil)
		er.armed = false
	}
}

func (r *EpollReactor) Len() int {
	return len(r.regs)
}

// Wait blocks in epoll_wait until the nearest deadline, then fires ready
// registrations followed by expired ones, each exactly once.
func (r *EpollReactor) Wait() error {
	if r.closed() {
		return api.NewError(api.ErrCodeInvalidState, "reactor is closed")
	}
	if len(r.regs) == 0 {
		return api.NewError(api.ErrCodeInvalidState, "nothing to wait for")
	}

	all := make([]*epollRegistration, 0, len(r.regs))
	for _, er := range r.regs {
		all = append(all, er)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	timeout := nearestTimeout(all, func(er *epollRegistration) time.Time { return er.reg.Deadline })

	n, err := unix.EpollWait(r.epfd, r.events, socket.PollTimeoutMs(timeout))
	if err != nil && err != unix.EINTR {
		return api.WrapError(api.ErrCodeSelector, "epoll wait", err)
	}

	type firing struct {
		er *epollRegistration
		r  api.Readiness
	}
	fired := make([]firing, 0, n)
	seen := make(map[uint64]struct{}, n)
	for i := 0; i < n; i++ {
		ev := r.events[i]
		id := *(*uint64)(unsafe.Pointer(&ev.Fd))
		er, ok := r.byID[id]
		if !ok {
			continue
		}
		var rd api.Readiness
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
			rd |= api.ReadyRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			rd |= api.ReadyWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			rd |= api.ReadyError
		}
		fired = append(fired, firing{er: er, r: rd})
		seen[id] = struct{}{}
	}

	now := time.Now()
	for _, er := range all {
		if _, ok := seen[er.id]; ok {
			continue
		}
		if !er.reg.Deadline.IsZero() && !now.Before(er.reg.Deadline) {
			fired = append(fired, firing{er: er, r: api.ReadyTimeout})
		}
	}

	for _, f := range fired {
		// Skip registrations superseded, cancelled or orphaned by Close while
		// earlier callbacks ran.
		if f.er.epoch != r.epoch.Load() || r.byID[f.er.id] != f.er {
			continue
		}
		r.remove(f.er.reg.Key)
		f.er.reg.Callback(f.r)
	}
	return nil
}

// Close bumps the epoch, cancels every registration and releases the epoll
// descriptor. Only the first call has an effect.
func (r *EpollReactor) Close() error {
	r.closeOnce.Do(func() {
		r.epoch.Inc()
		r.regs = make(map[any]*epollRegistration)
		r.byID = make(map[uint64]*epollRegistration)
		epfd := r.epfd
		r.epfd = -1
		if err := unix.Close(epfd); err != nil {
			r.closeErr = api.WrapError(api.ErrCodeSelector, "epoll close", err)
		}
	})
	return r.closeErr
}
