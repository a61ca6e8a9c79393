// File: api/operation.go
// Author: momentics <momentics@gmail.com>
//
// Desired socket operation kinds.

package api

// OperationType is what the executor should do with a socket once it is ready.
type OperationType int

const (
	OperationRead OperationType = iota
	OperationWrite
	// OperationDelayed arms only the deadline: the socket waits until a handler
	// changes its operation or the io timeout elapses.
	OperationDelayed
)

func (o OperationType) String() string {
	switch o {
	case OperationRead:
		return "read"
	case OperationWrite:
		return "write"
	case OperationDelayed:
		return "delayed"
	default:
		return "unknown"
	}
}

// Interest maps the operation to the readiness it waits for.
func (o OperationType) Interest() Interest {
	switch o {
	case OperationRead:
		return InterestRead
	case OperationWrite:
		return InterestWrite
	default:
		return InterestNone
	}
}
