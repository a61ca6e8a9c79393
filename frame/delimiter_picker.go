package frame

import (
	"bytes"
	"errors"
)

// ErrFrameTooLarge is reported when no boundary shows up within the limit.
var ErrFrameTooLarge = errors.New("frame size greater than max length")

// DelimiterOption customizes a DelimiterPicker.
type DelimiterOption func(p *DelimiterPicker)

// KeepDelimiter keeps the delimiter at the end of the produced frame.
func KeepDelimiter() DelimiterOption {
	return func(p *DelimiterPicker) {
		p.strip = false
	}
}

// DelimiterPicker completes a frame on the first occurrence of a delimiter.
type DelimiterPicker struct {
	delimiter []byte
	maxLength int
	strip     bool
	buffer    []byte
	eof       bool
	err       error
}

var _ Picker = (*DelimiterPicker)(nil)
var _ Validator = (*DelimiterPicker)(nil)

// NewDelimiterPicker returns a picker splitting on delimiter. maxLength <= 0
// disables the length guard.
func NewDelimiterPicker(delimiter []byte, maxLength int, opts ...DelimiterOption) *DelimiterPicker {
	p := &DelimiterPicker{
		delimiter: append([]byte(nil), delimiter...),
		maxLength: maxLength,
		strip:     true,
	}
	for _, op := range opts {
		op(p)
	}
	return p
}

// DelimiterFactory is a PickerFactory for DelimiterPicker.
func DelimiterFactory(delimiter []byte, maxLength int, opts ...DelimiterOption) PickerFactory {
	return func() Picker {
		return NewDelimiterPicker(delimiter, maxLength, opts...)
	}
}

func (p *DelimiterPicker) PickUpData(chunk []byte) []byte {
	if p.eof || p.err != nil {
		return chunk
	}
	// search from the first position that could complete a delimiter
	start := len(p.buffer) - len(p.delimiter) + 1
	if start < 0 {
		start = 0
	}
	p.buffer = append(p.buffer, chunk...)
	idx := bytes.Index(p.buffer[start:], p.delimiter)
	if idx < 0 {
		if p.maxLength > 0 && len(p.buffer) > p.maxLength {
			p.err = ErrFrameTooLarge
		}
		return nil
	}
	end := start + idx + len(p.delimiter)
	if p.maxLength > 0 && end > p.maxLength {
		p.err = ErrFrameTooLarge
		return nil
	}
	rest := append([]byte(nil), p.buffer[end:]...)
	p.buffer = p.buffer[:end]
	p.eof = true
	return rest
}

func (p *DelimiterPicker) IsEOF() bool {
	return p.eof
}

func (p *DelimiterPicker) Err() error {
	return p.err
}

func (p *DelimiterPicker) CreateFrame() Frame {
	data := p.buffer
	if p.eof && p.strip {
		data = data[:len(data)-len(p.delimiter)]
	}
	return New(data)
}
