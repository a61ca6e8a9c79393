package frame

import (
	"encoding/binary"
	"errors"
)

// LengthHeaderSize is the size of the big-endian length prefix.
const LengthHeaderSize = 4

// preallocLimit caps the buffer reserved up front; longer frames grow as data
// arrives.
const preallocLimit = 8192

// ErrInvalidLength is reported for a zero or over-limit length prefix.
var ErrInvalidLength = errors.New("frame length out of range")

// FixedLengthPicker completes after exactly n bytes.
type FixedLengthPicker struct {
	length int
	buffer []byte
}

var _ Picker = (*FixedLengthPicker)(nil)

// NewFixedLengthPicker returns a picker for n-byte frames. A negative n is
// treated as zero.
func NewFixedLengthPicker(n int) *FixedLengthPicker {
	if n < 0 {
		n = 0
	}
	return &FixedLengthPicker{length: n, buffer: make([]byte, 0, min(n, preallocLimit))}
}

// FixedLengthFactory is a PickerFactory for FixedLengthPicker.
func FixedLengthFactory(n int) PickerFactory {
	return func() Picker { return NewFixedLengthPicker(n) }
}

func (p *FixedLengthPicker) PickUpData(chunk []byte) []byte {
	need := p.length - len(p.buffer)
	if need <= 0 {
		return chunk
	}
	if len(chunk) <= need {
		p.buffer = append(p.buffer, chunk...)
		return nil
	}
	p.buffer = append(p.buffer, chunk[:need]...)
	return chunk[need:]
}

func (p *FixedLengthPicker) IsEOF() bool {
	return len(p.buffer) >= p.length
}

func (p *FixedLengthPicker) CreateFrame() Frame {
	return New(p.buffer)
}

// LengthPrefixPicker reads a 4-byte big-endian length then that many bytes.
// The produced frame holds the body only.
type LengthPrefixPicker struct {
	maxLength int
	header    []byte
	body      *FixedLengthPicker
	err       error
}

var _ Picker = (*LengthPrefixPicker)(nil)
var _ Validator = (*LengthPrefixPicker)(nil)

// NewLengthPrefixPicker returns a picker for length-prefixed frames.
// maxLength <= 0 disables the limit.
func NewLengthPrefixPicker(maxLength int) *LengthPrefixPicker {
	return &LengthPrefixPicker{maxLength: maxLength, header: make([]byte, 0, LengthHeaderSize)}
}

// LengthPrefixFactory is a PickerFactory for LengthPrefixPicker.
func LengthPrefixFactory(maxLength int) PickerFactory {
	return func() Picker { return NewLengthPrefixPicker(maxLength) }
}

func (p *LengthPrefixPicker) PickUpData(chunk []byte) []byte {
	if p.err != nil {
		return chunk
	}
	if p.body == nil {
		need := LengthHeaderSize - len(p.header)
		if len(chunk) < need {
			p.header = append(p.header, chunk...)
			return nil
		}
		p.header = append(p.header, chunk[:need]...)
		chunk = chunk[need:]

		n := binary.BigEndian.Uint32(p.header)
		if n == 0 || (p.maxLength > 0 && int64(n) > int64(p.maxLength)) {
			p.err = ErrInvalidLength
			return chunk
		}
		p.body = NewFixedLengthPicker(int(n))
	}
	return p.body.PickUpData(chunk)
}

func (p *LengthPrefixPicker) IsEOF() bool {
	return p.body != nil && p.body.IsEOF()
}

func (p *LengthPrefixPicker) Err() error {
	return p.err
}

func (p *LengthPrefixPicker) CreateFrame() Frame {
	if p.body == nil {
		return New(nil)
	}
	return p.body.CreateFrame()
}

// EncodeLengthPrefix frames payload with a 4-byte big-endian length header.
func EncodeLengthPrefix(payload []byte) []byte {
	out := make([]byte, LengthHeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[:LengthHeaderSize], uint32(len(payload)))
	copy(out[LengthHeaderSize:], payload)
	return out
}
