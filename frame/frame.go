// Package frame defines frames and the pluggable pickers that decide where one
// logical message ends inside a byte stream.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package frame

// Frame is one complete logical message.
type Frame interface {
	// Data returns the frame payload.
	Data() []byte
}

// Picker accumulates bytes and decides frame boundaries. A picker instance is
// single-use: create a new one for every frame.
type Picker interface {
	// PickUpData feeds a chunk and returns the bytes that belong to the next
	// frame, if the boundary was found inside the chunk.
	PickUpData(chunk []byte) []byte

	// IsEOF reports whether the frame is complete. Once true it stays true.
	IsEOF() bool

	// CreateFrame builds the frame from the accumulated bytes.
	CreateFrame() Frame
}

// EOFMarker is implemented by pickers that complete when the remote closes.
type EOFMarker interface {
	MarkEOF()
}

// Validator is implemented by pickers that can reject the stream content, such
// as a delimiter never showing up within the length limit.
type Validator interface {
	Err() error
}

// PickerFactory creates a fresh picker for every read.
type PickerFactory func() Picker

type rawFrame struct {
	data []byte
}

// New wraps data as a complete frame.
func New(data []byte) Frame {
	return &rawFrame{data: data}
}

func (f *rawFrame) Data() []byte {
	return f.data
}

func (f *rawFrame) String() string {
	return string(f.data)
}

// PartialFrame wraps a frame whose stream ended before the boundary was reached.
// It must not be treated as a valid complete frame.
type PartialFrame struct {
	Original Frame
}

// NewPartial wraps f as partial.
func NewPartial(f Frame) *PartialFrame {
	return &PartialFrame{Original: f}
}

func (p *PartialFrame) Data() []byte {
	if p.Original == nil {
		return nil
	}
	return p.Original.Data()
}

func (p *PartialFrame) String() string {
	return string(p.Data())
}

// IsPartial reports whether f is a PartialFrame.
func IsPartial(f Frame) bool {
	_, ok := f.(*PartialFrame)
	return ok
}
