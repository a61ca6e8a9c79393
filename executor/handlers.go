// File: executor/handlers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler tables and dispatch with panic recovery.

package executor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/socket"
)

// HandlerFunc handles one event. A returned error or a panic is redelivered
// as an Exception event for the same socket.
type HandlerFunc func(ev Event) error

type handlerTable map[api.EventKind][]HandlerFunc

func (t handlerTable) add(handlers map[api.EventKind]HandlerFunc) {
	for _, k := range api.EventKinds() {
		if h, ok := handlers[k]; ok && h != nil {
			t[k] = append(t[k], h)
		}
	}
}

// AddHandler registers handlers for sock, or globally when sock is nil.
// Socket handlers run before global ones, each in registration order.
func (e *RequestExecutor) AddHandler(handlers map[api.EventKind]HandlerFunc, sock *socket.Socket) error {
	for k := range handlers {
		if !k.Valid() {
			return api.NewError(api.ErrCodeConfiguration, "unknown event kind").WithContext("kind", k.String())
		}
	}
	if sock == nil {
		e.global.add(handlers)
		return nil
	}
	t, ok := e.perSocket[sock]
	if !ok {
		t = make(handlerTable)
		e.perSocket[sock] = t
	}
	t.add(handlers)
	return nil
}

// RemoveHandlers drops every handler bound to sock.
func (e *RequestExecutor) RemoveHandlers(sock *socket.Socket) {
	delete(e.perSocket, sock)
}

func (e *RequestExecutor) handlersFor(ev Event) []HandlerFunc {
	kind := ev.Kind()
	var out []HandlerFunc
	if t, ok := e.perSocket[ev.Socket()]; ok {
		out = append(out, t[kind]...)
	}
	return append(out, e.global[kind]...)
}

// dispatch runs the handlers for ev. Failures become a nested Exception event;
// failures while handling an Exception are only logged.
func (e *RequestExecutor) dispatch(ev Event) {
	for _, h := range e.handlersFor(ev) {
		err := callHandler(h, ev)
		if err == nil {
			continue
		}
		if ev.Kind() == api.EventException {
			e.log.Warn("exception handler failed", zap.Int("fd", ev.Socket().Fd()), zap.Error(err))
			continue
		}
		e.log.Debug("handler failed", zap.Stringer("event", ev.Kind()), zap.Error(err))
		e.dispatch(e.exceptionEvent(ev, err))
	}
}

func callHandler(h HandlerFunc, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(error); ok {
				err = fmt.Errorf("handler panic: %w", re)
				return
			}
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ev)
}
