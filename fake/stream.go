// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for streams, dialers and backends.

package fake

import (
	"errors"
	"sync"
	"time"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/socket"
)

// ErrStreamClosed is returned by operations on a closed fake stream.
var ErrStreamClosed = errors.New("fake stream is closed")

// Stream is a scriptable socket.Stream. Incoming data is queued as chunks,
// each Peek/Read observes at most one chunk.
type Stream struct {
	mu sync.Mutex

	fd          int
	recvBuffer  [][]byte
	sent        []byte
	eof         bool
	closed      bool
	blocking    bool
	notWritable bool
	maxWrite    int

	writeError  error
	readError   error
	peerError   error
	socketError error

	waits  int
	writes int
}

var _ socket.Stream = (*Stream)(nil)

// NewStream creates a connected fake stream reporting fd as its descriptor.
func NewStream(fd int) *Stream {
	return &Stream{fd: fd}
}

func (s *Stream) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1
	}
	return s.fd
}

func (s *Stream) Peek(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.readError != nil {
		return 0, s.readError
	}
	if len(s.recvBuffer) == 0 {
		if s.eof {
			return 0, nil
		}
		return 0, socket.ErrWouldBlock
	}
	return copy(p, s.recvBuffer[0]), nil
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.readError != nil {
		return 0, s.readError
	}
	if len(s.recvBuffer) == 0 {
		if s.eof {
			return 0, nil
		}
		return 0, socket.ErrWouldBlock
	}
	n := copy(p, s.recvBuffer[0])
	if n == len(s.recvBuffer[0]) {
		s.recvBuffer = s.recvBuffer[1:]
	} else {
		s.recvBuffer[0] = s.recvBuffer[0][n:]
	}
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	s.writes++
	if s.writeError != nil {
		return 0, s.writeError
	}
	n := len(p)
	if s.maxWrite > 0 && n > s.maxWrite {
		n = s.maxWrite
	}
	s.sent = append(s.sent, p[:n]...)
	return n, nil
}

func (s *Stream) PeerName() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerError != nil {
		return "", s.peerError
	}
	return "fake:0", nil
}

func (s *Stream) SocketError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketError
}

func (s *Stream) SetBlocking(blocking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocking = blocking
	return nil
}

// WaitReady answers immediately from the scripted state.
func (s *Stream) WaitReady(interest api.Interest, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits++
	if s.closed {
		return false, ErrStreamClosed
	}
	switch interest {
	case api.InterestRead:
		return len(s.recvBuffer) > 0 || s.eof || s.readError != nil, nil
	case api.InterestWrite:
		return !s.notWritable, nil
	}
	return false, nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// AddRecvData queues data to be returned by subsequent reads.
func (s *Stream) AddRecvData(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	s.recvBuffer = append(s.recvBuffer, dataCopy)
}

// CloseRemote makes reads report end of stream once queued data is drained.
func (s *Stream) CloseRemote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eof = true
}

// SetMaxWrite caps the bytes accepted by one Write call. Zero means no cap.
func (s *Stream) SetMaxWrite(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxWrite = n
}

// SetWritable controls the write readiness answer.
func (s *Stream) SetWritable(writable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notWritable = !writable
}

// SetWriteError configures the stream to fail on Write.
func (s *Stream) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeError = err
}

// SetReadError configures the stream to fail on Peek and Read.
func (s *Stream) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readError = err
}

// SetPeerError configures PeerName to fail.
func (s *Stream) SetPeerError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerError = err
}

// SetSocketError configures the pending asynchronous socket error.
func (s *Stream) SetSocketError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socketError = err
}

// SentData returns everything written so far.
func (s *Stream) SentData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.sent...)
}

// IsClosed reports whether Close was called.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IsBlocking reports the last blocking mode set.
func (s *Stream) IsBlocking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocking
}

// Writes returns the number of Write calls.
func (s *Stream) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Waits returns the number of WaitReady calls.
func (s *Stream) Waits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waits
}

// Dialer hands out scripted streams and records the dialed addresses.
type Dialer struct {
	mu        sync.Mutex
	streams   []socket.Stream
	addresses []string
	err       error
}

var _ socket.Dialer = (*Dialer)(nil)

// NewDialer returns a dialer serving streams in order.
func NewDialer(streams ...socket.Stream) *Dialer {
	return &Dialer{streams: streams}
}

func (d *Dialer) Dial(address string) (socket.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = append(d.addresses, address)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.streams) == 0 {
		return nil, errors.New("fake dialer exhausted")
	}
	st := d.streams[0]
	d.streams = d.streams[1:]
	return st, nil
}

// SetError makes every following Dial fail.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Addresses returns the dialed addresses.
func (d *Dialer) Addresses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addresses...)
}
