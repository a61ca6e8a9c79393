package frame

// NullPicker reads until the remote side closes the stream. Content never
// completes it; the socket calls MarkEOF when it observes the close.
type NullPicker struct {
	buffer []byte
	eof    bool
}

var _ Picker = (*NullPicker)(nil)
var _ EOFMarker = (*NullPicker)(nil)

// NewNullPicker returns an exhaustive picker.
func NewNullPicker() Picker {
	return &NullPicker{}
}

func (p *NullPicker) PickUpData(chunk []byte) []byte {
	p.buffer = append(p.buffer, chunk...)
	return nil
}

func (p *NullPicker) IsEOF() bool {
	return p.eof
}

// MarkEOF signals the end of stream.
func (p *NullPicker) MarkEOF() {
	p.eof = true
}

func (p *NullPicker) CreateFrame() Frame {
	return New(p.buffer)
}
