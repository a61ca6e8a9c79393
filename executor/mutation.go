// File: executor/mutation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Changes requested while Execute runs are queued and applied at flush points.

package executor

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/socket"
)

type mutationKind int

const (
	mutationAdd mutationKind = iota
	mutationRemove
	mutationSet
)

type mutation struct {
	kind  mutationKind
	sock  *socket.Socket
	meta  Metadata
	key   MetadataKey
	value any
}

func (e *RequestExecutor) enqueue(m mutation) {
	switch m.kind {
	case mutationAdd:
		e.pendingAdd[m.sock]++
	case mutationRemove:
		e.pendingRemove[m.sock]++
	}
	e.pending.Add(m)
}

// flush applies queued mutations in order, including the ones queued by the
// handlers fired while flushing.
func (e *RequestExecutor) flush() {
	for e.pending.Length() > 0 {
		m := e.pending.Remove().(mutation)
		switch m.kind {
		case mutationAdd:
			e.release(e.pendingAdd, m.sock)
			if en, ok := e.entries[m.sock]; ok && en.state != stateFinalized {
				e.log.Warn("socket is already registered", zap.Int("fd", m.sock.Fd()))
				continue
			}
			e.register(m.sock, m.meta)
		case mutationRemove:
			e.release(e.pendingRemove, m.sock)
			if en, ok := e.entries[m.sock]; ok {
				e.shutdown(en)
			}
		case mutationSet:
			en, ok := e.entries[m.sock]
			if !ok {
				continue
			}
			if err := en.meta.set(m.key, m.value); err != nil {
				e.log.Warn("metadata update rejected", zap.String("key", string(m.key)), zap.Error(err))
				continue
			}
			e.disarm(en)
		}
	}
}

func (e *RequestExecutor) release(counts map[*socket.Socket]int, sock *socket.Socket) {
	if counts[sock] <= 1 {
		delete(counts, sock)
		return
	}
	counts[sock]--
}
