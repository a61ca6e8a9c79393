// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket owns one stream and drives the non-blocking read/write protocol with
// frame boundary detection.

package socket

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/frame"
)

const (
	// BufferSize is the maximum chunk consumed by one read call.
	BufferSize = 8192

	// SendAttempts is the number of consecutive zero-progress write attempts
	// tolerated before a write fails.
	SendAttempts = 10

	// SelectDelay bounds every readiness wait inside Read and Write.
	SelectDelay = 25 * time.Millisecond
)

// State is the socket lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Option customizes a Socket.
type Option func(*Socket)

// WithDialer sets the stream factory used by Open.
func WithDialer(d Dialer) Option {
	return func(s *Socket) {
		s.dialer = d
	}
}

// WithBlocking sets the initial blocking mode. Sockets are non-blocking by default.
func WithBlocking(blocking bool) Option {
	return func(s *Socket) {
		s.blocking = blocking
	}
}

// Socket is a client stream driven through Uninitialized, Connected and
// Disconnected. It is not safe for concurrent use.
type Socket struct {
	dialer   Dialer
	stream   Stream
	state    State
	blocking bool
	// verified is set once the peer was found addressable on first I/O.
	verified bool
	// lost is set when the remote side went away under an open stream.
	lost bool
	// pending keeps bytes read past the end of the previous frame.
	pending []byte
	buf     []byte
}

// New creates an unopened socket.
func New(opts ...Option) *Socket {
	s := &Socket{
		dialer: UnixDialer{},
		state:  StateUninitialized,
	}
	for _, op := range opts {
		op(s)
	}
	return s
}

// State returns the lifecycle state.
func (s *Socket) State() State {
	return s.state
}

// Fd returns the stream descriptor or -1 when there is no stream.
func (s *Socket) Fd() int {
	if s.stream == nil {
		return -1
	}
	return s.stream.Fd()
}

// Stream returns the owned stream, nil when closed.
func (s *Socket) Stream() Stream {
	return s.stream
}

// IsBlocking reports the configured blocking mode.
func (s *Socket) IsBlocking() bool {
	return s.blocking
}

// Buffered returns the number of bytes already read past the previous frame.
// The next Read consumes them before touching the stream.
func (s *Socket) Buffered() int {
	return len(s.pending)
}

// Open releases any previous stream and dials address.
func (s *Socket) Open(address string) error {
	s.Close()

	stream, err := s.dialer.Dial(address)
	if err != nil {
		if api.CodeOf(err) == api.ErrCodeConfiguration {
			return err
		}
		if errors.Is(err, api.ErrNetwork) {
			return err
		}
		return api.WrapError(api.ErrCodeNetwork, "connection error", err).WithContext("address", address)
	}
	if stream == nil {
		return api.NewError(api.ErrCodeNetwork, "connection error").WithContext("address", address)
	}
	if err := stream.SetBlocking(s.blocking); err != nil {
		_ = stream.Close()
		return api.WrapError(api.ErrCodeNetwork, s.blockingMessage(s.blocking), err)
	}

	s.stream = stream
	s.state = StateConnected
	return nil
}

// Attach takes ownership of an already opened stream.
func (s *Socket) Attach(stream Stream) error {
	s.Close()
	if err := stream.SetBlocking(s.blocking); err != nil {
		_ = stream.Close()
		return api.WrapError(api.ErrCodeNetwork, s.blockingMessage(s.blocking), err)
	}
	s.stream = stream
	s.state = StateConnected
	return nil
}

// Close shuts the stream down and releases it. Safe to call repeatedly.
func (s *Socket) Close() error {
	s.state = StateDisconnected
	s.verified = false
	s.lost = false
	s.pending = nil
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	return stream.Close()
}

// SetBlocking switches blocking mode now if a stream is open, and remembers it
// for the next Open otherwise.
func (s *Socket) SetBlocking(blocking bool) error {
	if s.stream != nil {
		if err := s.stream.SetBlocking(blocking); err != nil {
			return api.WrapError(api.ErrCodeNetwork, s.blockingMessage(blocking), err)
		}
	}
	s.blocking = blocking
	return nil
}

func (s *Socket) blockingMessage(blocking bool) string {
	if blocking {
		return "failed to switch blocking mode"
	}
	return "failed to switch non-blocking mode"
}

// Read assembles a frame with picker, or continues the one carried by prev.
// A nil picker reads until the remote side closes. It returns a *SocketResponse
// once the frame is complete and a *ChunkResponse to resume later otherwise.
func (s *Socket) Read(picker frame.Picker, prev *ChunkResponse) (Response, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	var data []byte
	if prev != nil {
		picker = prev.picker
		data = append(data, prev.data...)
	}
	if picker == nil {
		picker = frame.NewNullPicker()
	}

	changed := false
	for !picker.IsEOF() {
		var chunk []byte
		if len(s.pending) > 0 {
			chunk, s.pending = s.pending, nil
		} else {
			ready, err := s.stream.WaitReady(api.InterestRead, SelectDelay)
			if err != nil {
				return nil, s.networkError("failed to read data", err)
			}
			if !ready {
				break
			}

			n, err := s.peek()
			if errors.Is(err, ErrWouldBlock) {
				break
			}
			if err != nil {
				return nil, s.failure("failed to read data", err)
			}
			if n == 0 {
				if m, ok := picker.(frame.EOFMarker); ok {
					m.MarkEOF()
				}
				if !picker.IsEOF() {
					return nil, &FrameError{
						Err:   api.NewError(api.ErrCodeFrame, "failed to receive desired frame"),
						Frame: frame.NewPartial(picker.CreateFrame()),
					}
				}
				break
			}
			if chunk, err = s.readActualData(); err != nil {
				return nil, err
			}
		}

		rest := picker.PickUpData(chunk)
		data = append(data, chunk[:len(chunk)-len(rest)]...)
		if len(rest) > 0 {
			s.pending = append([]byte(nil), rest...)
		}
		changed = true

		if v, ok := picker.(frame.Validator); ok && v.Err() != nil {
			return nil, &FrameError{
				Err:   api.WrapError(api.ErrCodeFrame, "failed to receive desired frame", v.Err()),
				Frame: frame.NewPartial(picker.CreateFrame()),
			}
		}
	}

	if picker.IsEOF() {
		return &SocketResponse{frame: picker.CreateFrame(), data: data}, nil
	}
	if !changed && prev != nil {
		return prev, nil
	}
	return &ChunkResponse{picker: picker, data: data}, nil
}

// Write writes data until drained. It waits at most SelectDelay per attempt and
// fails after SendAttempts consecutive attempts without progress.
func (s *Socket) Write(data []byte) (int, error) {
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}

	written := 0
	attempts := SendAttempts
	for written < len(data) {
		ready, err := s.stream.WaitReady(api.InterestWrite, SelectDelay)
		if err != nil {
			return written, s.networkError("failed to send data", err)
		}

		n := 0
		if ready {
			if n, err = s.writeActualData(data[written:]); err != nil {
				return written, err
			}
		}
		if n == 0 {
			attempts--
		} else {
			attempts = SendAttempts
		}
		written += n

		if attempts == 0 && written < len(data) {
			return written, api.NewError(api.ErrCodeNetwork, "failed to send data").
				WithContext("written", written).WithContext("total", len(data))
		}
	}
	return written, nil
}

func (s *Socket) peek() (int, error) {
	if s.buf == nil {
		s.buf = make([]byte, BufferSize)
	}
	return s.stream.Peek(s.buf)
}

func (s *Socket) readActualData() ([]byte, error) {
	if s.buf == nil {
		s.buf = make([]byte, BufferSize)
	}
	n, err := s.stream.Read(s.buf)
	if err != nil {
		return nil, s.failure("failed to read data", err)
	}
	if n == 0 {
		if err := s.checkPeer("remote connection has been lost"); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), s.buf[:n]...), nil
}

func (s *Socket) writeActualData(data []byte) (int, error) {
	if err := s.stream.SocketError(); err != nil {
		return 0, s.failure("failed to send data", err)
	}
	n, err := s.stream.Write(data)
	if err != nil {
		return 0, s.failure("failed to send data", err)
	}
	if n == 0 {
		if err := s.checkPeer("remote connection has been lost"); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// VerifyConnection checks an in-progress connect after write readiness: the
// pending socket error must be clear and the peer addressable.
func (s *Socket) VerifyConnection() error {
	if s.stream != nil {
		if err := s.stream.SocketError(); err != nil {
			return api.WrapError(api.ErrCodeNetwork, "connection refused", err)
		}
	}
	return s.ensureConnected()
}

func (s *Socket) ensureConnected() error {
	if s.stream == nil {
		if s.lost {
			return api.NewError(api.ErrCodeNetwork, "connection was unexpectedly closed")
		}
		return api.NewError(api.ErrCodeNetwork, "can not start io operation on uninitialized socket")
	}
	if !s.verified {
		if _, err := s.stream.PeerName(); err != nil {
			return api.WrapError(api.ErrCodeNetwork, "connection refused", err)
		}
		s.verified = true
	}
	return nil
}

func (s *Socket) checkPeer(message string) error {
	if _, err := s.stream.PeerName(); err != nil {
		return s.lose(message, err)
	}
	return nil
}

// failure converts a stream error, releasing the stream when the peer is gone.
func (s *Socket) failure(message string, err error) error {
	if isConnectionLost(err) {
		return s.lose("remote connection has been lost", err)
	}
	return s.networkError(message, err)
}

func (s *Socket) lose(message string, err error) error {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.state = StateDisconnected
	s.verified = false
	s.lost = true
	s.pending = nil
	return api.WrapError(api.ErrCodeNetwork, message, err)
}

func (s *Socket) networkError(message string, err error) error {
	return api.WrapError(api.ErrCodeNetwork, message, err)
}

func isConnectionLost(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// FrameError reports a stream that ended before the frame was complete. Frame
// holds what was assembled, wrapped as partial.
type FrameError struct {
	Err   *api.Error
	Frame *frame.PartialFrame
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s (%d bytes received)", e.Err.Error(), len(e.Frame.Data()))
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
