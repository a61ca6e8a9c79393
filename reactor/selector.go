// File: reactor/selector.go
// Author: momentics <momentics@gmail.com>
//
// Insertion-ordered readiness multiplexer over poll(2).

package reactor

import (
	"time"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/socket"
)

// Handle is anything exposing a descriptor. Handles are compared by identity,
// so pointer types are expected.
type Handle interface {
	Fd() int
}

// Pair binds a handle to an interest set for AddInterests.
type Pair struct {
	Handle   Handle
	Interest api.Interest
}

// Result lists handles ready for reading and for writing. A handle shows up
// only in the sets matching its registered interest.
type Result struct {
	Read  []Handle
	Write []Handle
}

// Empty reports whether nothing is ready.
func (r Result) Empty() bool {
	return len(r.Read) == 0 && len(r.Write) == 0
}

type selectorEntry struct {
	handle   Handle
	interest api.Interest
}

// pollEntry is the platform-neutral poll(2) request/response slot.
type pollEntry struct {
	fd      int
	events  api.Interest
	revents api.Readiness
}

// Selector maps handles to interest sets. It is not safe for concurrent use.
type Selector struct {
	entries []*selectorEntry
	index   map[Handle]*selectorEntry
	polls   []pollEntry
}

// NewSelector creates an empty selector.
func NewSelector() *Selector {
	return &Selector{index: make(map[Handle]*selectorEntry)}
}

// Len returns the number of registered handles.
func (s *Selector) Len() int {
	return len(s.entries)
}

// Has reports whether h is registered.
func (s *Selector) Has(h Handle) bool {
	_, ok := s.index[h]
	return ok
}

// Interest returns the registered interest of h.
func (s *Selector) Interest(h Handle) api.Interest {
	if e, ok := s.index[h]; ok {
		return e.interest
	}
	return api.InterestNone
}

func validInterest(i api.Interest) bool {
	return i != api.InterestNone && i&^(api.InterestRead|api.InterestWrite) == 0
}

// AddInterest adds interest to the set of h, registering h if needed.
func (s *Selector) AddInterest(h Handle, interest api.Interest) error {
	if h == nil {
		return api.NewError(api.ErrCodeConfiguration, "nil handle")
	}
	if !validInterest(interest) {
		return api.NewError(api.ErrCodeConfiguration, "invalid interest").WithContext("interest", interest.String())
	}
	if e, ok := s.index[h]; ok {
		e.interest |= interest
		return nil
	}
	e := &selectorEntry{handle: h, interest: interest}
	s.entries = append(s.entries, e)
	s.index[h] = e
	return nil
}

// AddInterests registers several pairs. Input is validated before anything is
// applied.
func (s *Selector) AddInterests(pairs []Pair) error {
	for i, p := range pairs {
		if p.Handle == nil || !validInterest(p.Interest) {
			return api.NewError(api.ErrCodeConfiguration, "malformed interest pair").WithContext("index", i)
		}
	}
	for _, p := range pairs {
		_ = s.AddInterest(p.Handle, p.Interest)
	}
	return nil
}

// RemoveInterest clears interest from h, dropping h once no interest is left.
func (s *Selector) RemoveInterest(h Handle, interest api.Interest) error {
	e, ok := s.index[h]
	if !ok {
		return api.NewError(api.ErrCodeInvalidState, "handle was not registered in selector")
	}
	if e.interest&interest == api.InterestNone {
		return api.NewError(api.ErrCodeInvalidState, "interest was not registered in selector").
			WithContext("interest", interest.String())
	}
	e.interest &^= interest
	if e.interest == api.InterestNone {
		s.drop(h)
	}
	return nil
}

// RemoveAll unregisters h.
func (s *Selector) RemoveAll(h Handle) error {
	if _, ok := s.index[h]; !ok {
		return api.NewError(api.ErrCodeInvalidState, "handle was not registered in selector")
	}
	s.drop(h)
	return nil
}

// ChangeInterest replaces the interest of h. InterestNone unregisters it.
func (s *Selector) ChangeInterest(h Handle, interest api.Interest) error {
	if _, ok := s.index[h]; ok {
		s.drop(h)
	}
	if interest == api.InterestNone {
		return nil
	}
	return s.AddInterest(h, interest)
}

func (s *Selector) drop(h Handle) {
	delete(s.index, h)
	for i, e := range s.entries {
		if e.handle == h {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Probe waits up to timeout for readiness. A negative timeout waits forever.
// It fails with ErrCodeInvalidState when nothing is registered, ErrCodeSelector
// when poll(2) fails and ErrCodeTimeout when nothing became ready.
func (s *Selector) Probe(timeout time.Duration) (Result, error) {
	if len(s.entries) == 0 {
		return Result{}, api.NewError(api.ErrCodeInvalidState, "no handles registered in selector")
	}

	s.polls = s.polls[:0]
	for _, e := range s.entries {
		s.polls = append(s.polls, pollEntry{fd: e.handle.Fd(), events: e.interest})
	}
	n, err := pollWait(s.polls, socket.PollTimeoutMs(timeout))
	if err != nil {
		return Result{}, api.WrapError(api.ErrCodeSelector, "failed to select sockets", err)
	}
	if n == 0 {
		return Result{}, api.NewError(api.ErrCodeTimeout, "select timed out")
	}

	var res Result
	for i, e := range s.entries {
		r := s.polls[i].revents
		broken := r&api.ReadyError != 0
		if e.interest&api.InterestRead != 0 && (r&api.ReadyRead != 0 || broken) {
			res.Read = append(res.Read, e.handle)
		}
		if e.interest&api.InterestWrite != 0 && (r&api.ReadyWrite != 0 || broken) {
			res.Write = append(res.Write, e.handle)
		}
	}
	if res.Empty() {
		return res, api.NewError(api.ErrCodeTimeout, "select timed out")
	}
	return res, nil
}
