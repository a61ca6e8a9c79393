package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(p Picker, chunks ...[]byte) []byte {
	var rest []byte
	for _, c := range chunks {
		rest = append(rest, p.PickUpData(c)...)
	}
	return rest
}

func TestNullPicker_ChunkingInvariance(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	for size := 1; size <= len(payload); size++ {
		p := NewNullPicker()
		var chunks [][]byte
		for i := 0; i < len(payload); i += size {
			end := i + size
			if end > len(payload) {
				end = len(payload)
			}
			chunks = append(chunks, payload[i:end])
		}
		rest := feedAll(p, chunks...)
		assert.Empty(t, rest)
		assert.False(t, p.IsEOF(), "content alone must not complete the frame")

		p.(EOFMarker).MarkEOF()
		require.True(t, p.IsEOF())
		assert.Equal(t, payload, p.CreateFrame().Data(), "chunk size %d", size)
	}
}

func TestPartialFrame(t *testing.T) {
	full := New([]byte("abc"))
	partial := NewPartial(full)

	assert.False(t, IsPartial(full))
	assert.True(t, IsPartial(partial))
	assert.Equal(t, []byte("abc"), partial.Data())
	assert.Nil(t, (&PartialFrame{}).Data())
}

func TestDelimiterPicker(t *testing.T) {
	tests := []struct {
		name      string
		picker    *DelimiterPicker
		chunks    []string
		wantEOF   bool
		wantFrame string
		wantRest  string
		wantErr   error
	}{
		{
			name:      "single chunk",
			picker:    NewDelimiterPicker([]byte("\n"), 8),
			chunks:    []string{"1234567\n"},
			wantEOF:   true,
			wantFrame: "1234567",
		},
		{
			name:      "delimiter split across chunks",
			picker:    NewDelimiterPicker([]byte("\r\n"), 0),
			chunks:    []string{"PONG\r", "\nnext"},
			wantEOF:   true,
			wantFrame: "PONG",
			wantRest:  "next",
		},
		{
			name:      "keep delimiter",
			picker:    NewDelimiterPicker([]byte("\n"), 8, KeepDelimiter()),
			chunks:    []string{"1234", "567\n"},
			wantEOF:   true,
			wantFrame: "1234567\n",
		},
		{
			name:    "too large",
			picker:  NewDelimiterPicker([]byte("\n"), 7),
			chunks:  []string{"1234567\n"},
			wantErr: ErrFrameTooLarge,
		},
		{
			name:      "incomplete",
			picker:    NewDelimiterPicker([]byte("\n"), 0),
			chunks:    []string{"12", "34"},
			wantFrame: "1234",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chunks [][]byte
			for _, c := range tt.chunks {
				chunks = append(chunks, []byte(c))
			}
			rest := feedAll(tt.picker, chunks...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, tt.picker.Err(), tt.wantErr)
				assert.False(t, tt.picker.IsEOF())
				return
			}
			require.NoError(t, tt.picker.Err())
			assert.Equal(t, tt.wantEOF, tt.picker.IsEOF())
			assert.Equal(t, tt.wantFrame, string(tt.picker.CreateFrame().Data()))
			assert.Equal(t, tt.wantRest, string(rest))
		})
	}
}

func TestDelimiterPicker_StaysCompleteAfterMoreData(t *testing.T) {
	p := NewDelimiterPicker([]byte(";"), 0)
	p.PickUpData([]byte("a;"))
	require.True(t, p.IsEOF())

	rest := p.PickUpData([]byte("b;"))
	assert.True(t, p.IsEOF())
	assert.Equal(t, "b;", string(rest))
	assert.Equal(t, "a", string(p.CreateFrame().Data()))
}

func TestFixedLengthPicker(t *testing.T) {
	p := NewFixedLengthPicker(5)
	assert.Empty(t, p.PickUpData([]byte("ab")))
	assert.False(t, p.IsEOF())
	rest := p.PickUpData([]byte("cdefg"))
	assert.True(t, p.IsEOF())
	assert.Equal(t, "fg", string(rest))
	assert.Equal(t, "abcde", string(p.CreateFrame().Data()))
}

func TestLengthPrefixPicker(t *testing.T) {
	encoded := EncodeLengthPrefix([]byte("hello"))
	encoded = append(encoded, 'X')

	for split := 0; split <= len(encoded); split++ {
		p := NewLengthPrefixPicker(64)
		rest := feedAll(p, encoded[:split], encoded[split:])
		require.NoError(t, p.Err())
		require.True(t, p.IsEOF(), "split at %d", split)
		assert.Equal(t, "hello", string(p.CreateFrame().Data()))
		assert.True(t, bytes.Equal([]byte("X"), rest), "split at %d", split)
	}
}

func TestLengthPrefixPicker_InvalidLength(t *testing.T) {
	p := NewLengthPrefixPicker(3)
	p.PickUpData(EncodeLengthPrefix([]byte("toolong")))
	assert.ErrorIs(t, p.Err(), ErrInvalidLength)
	assert.False(t, p.IsEOF())

	zero := NewLengthPrefixPicker(0)
	zero.PickUpData([]byte{0, 0, 0, 0})
	assert.ErrorIs(t, zero.Err(), ErrInvalidLength)
}

func TestFixedLengthPicker_NegativeLength(t *testing.T) {
	p := NewFixedLengthPicker(-1)
	assert.True(t, p.IsEOF())
	assert.Equal(t, "abc", string(p.PickUpData([]byte("abc"))))
	assert.Empty(t, p.CreateFrame().Data())
}

func TestLengthPrefixPicker_HeaderDoesNotReserveBody(t *testing.T) {
	p := NewLengthPrefixPicker(0)
	assert.Empty(t, p.PickUpData([]byte{0x40, 0, 0, 0, 'x'}))
	require.NoError(t, p.Err())
	assert.False(t, p.IsEOF())
	assert.LessOrEqual(t, cap(p.body.buffer), preallocLimit)
	assert.Equal(t, "x", string(p.CreateFrame().Data()))
}
