// File: executor/operation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/frame"
	"github.com/momentics/hioload-sockets/socket"
)

// Operation is what the executor does with a socket once it is ready.
type Operation interface {
	Type() api.OperationType
}

// ReadOperation reads one frame. Picker builds a fresh picker for every read;
// nil reads until the remote side closes.
type ReadOperation struct {
	Picker frame.PickerFactory
}

// NewReadOperation returns a read operation using factory.
func NewReadOperation(factory frame.PickerFactory) *ReadOperation {
	return &ReadOperation{Picker: factory}
}

func (*ReadOperation) Type() api.OperationType { return api.OperationRead }

// pickerFor returns a fresh picker, or nil when a partial read is resumed.
func (o *ReadOperation) pickerFor(chunk *socket.ChunkResponse) frame.Picker {
	if chunk != nil {
		return nil
	}
	if o.Picker == nil {
		return frame.NewNullPicker()
	}
	if p := o.Picker(); p != nil {
		return p
	}
	return frame.NewNullPicker()
}

// WriteOperation writes Data in full.
type WriteOperation struct {
	Data []byte
}

// NewWriteOperation returns a write operation for data.
func NewWriteOperation(data []byte) *WriteOperation {
	return &WriteOperation{Data: data}
}

func (*WriteOperation) Type() api.OperationType { return api.OperationWrite }

// DelayedOperation performs no I/O. The socket waits until a handler changes
// its operation or the io timeout elapses.
type DelayedOperation struct{}

func (DelayedOperation) Type() api.OperationType { return api.OperationDelayed }
