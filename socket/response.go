// File: socket/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import "github.com/momentics/hioload-sockets/frame"

// Response is the outcome of Socket.Read.
type Response interface {
	// Data returns the raw bytes consumed for this frame so far.
	Data() []byte
	// Frame returns the assembled frame. Incomplete reads return a partial frame.
	Frame() frame.Frame
	// IsComplete reports whether the picker reached the frame boundary.
	IsComplete() bool
}

// SocketResponse carries a complete frame.
type SocketResponse struct {
	frame frame.Frame
	data  []byte
}

var _ Response = (*SocketResponse)(nil)

func (r *SocketResponse) Data() []byte       { return r.data }
func (r *SocketResponse) Frame() frame.Frame { return r.frame }
func (r *SocketResponse) IsComplete() bool   { return true }

// ChunkResponse is a resumable partial read. Pass it back to Socket.Read to
// keep filling the same picker.
type ChunkResponse struct {
	picker frame.Picker
	data   []byte
}

var _ Response = (*ChunkResponse)(nil)

func (r *ChunkResponse) Data() []byte { return r.data }

func (r *ChunkResponse) Frame() frame.Frame {
	return frame.NewPartial(r.picker.CreateFrame())
}

func (r *ChunkResponse) IsComplete() bool { return false }

// Picker returns the picker the read is being assembled with.
func (r *ChunkResponse) Picker() frame.Picker { return r.picker }
