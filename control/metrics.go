// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Event counters fed by global executor handlers.

package control

import (
	"go.uber.org/atomic"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/executor"
)

// EventCounters counts dispatched events per kind and bytes moved.
type EventCounters struct {
	events       map[api.EventKind]*atomic.Int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

// NewEventCounters creates zeroed counters for every kind.
func NewEventCounters() *EventCounters {
	c := &EventCounters{events: make(map[api.EventKind]*atomic.Int64)}
	for _, k := range api.EventKinds() {
		c.events[k] = atomic.NewInt64(0)
	}
	return c
}

// Handlers returns handlers to register globally on an executor.
func (c *EventCounters) Handlers() map[api.EventKind]executor.HandlerFunc {
	hs := make(map[api.EventKind]executor.HandlerFunc)
	for _, k := range api.EventKinds() {
		counter := c.events[k]
		hs[k] = func(ev executor.Event) error {
			counter.Inc()
			if io, ok := ev.(*executor.IoEvent); ok {
				switch ev.Kind() {
				case api.EventRead:
					c.bytesRead.Add(int64(len(io.Data())))
				case api.EventWrite:
					c.bytesWritten.Add(int64(len(io.Data())))
				}
			}
			return nil
		}
	}
	return hs
}

// Count returns the number of events of kind.
func (c *EventCounters) Count(kind api.EventKind) int64 {
	if v, ok := c.events[kind]; ok {
		return v.Load()
	}
	return 0
}

// GetSnapshot returns every counter keyed by name.
func (c *EventCounters) GetSnapshot() map[string]int64 {
	out := make(map[string]int64, len(c.events)+2)
	for k, v := range c.events {
		out[k.String()] = v.Load()
	}
	out["bytes_read"] = c.bytesRead.Load()
	out["bytes_written"] = c.bytesWritten.Load()
	return out
}
