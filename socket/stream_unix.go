//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

// File: socket/stream_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Descriptor-backed stream over raw non-blocking BSD sockets.

package socket

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
)

type fdStream struct {
	fd int
}

var _ Stream = (*fdStream)(nil)

// NewFDStream wraps an already created descriptor. Ownership moves to the stream.
func NewFDStream(fd int) Stream {
	return &fdStream{fd: fd}
}

// UnixDialer dials tcp and unix-domain streams with a non-blocking connect.
type UnixDialer struct{}

// Dial creates a non-blocking socket and starts connecting to address.
func (UnixDialer) Dial(address string) (Stream, error) {
	network, host, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	var (
		domain int
		sa     unix.Sockaddr
	)
	if network == "unix" {
		domain = unix.AF_UNIX
		sa = &unix.SockaddrUnix{Name: host}
	} else {
		tcpAddr, err := net.ResolveTCPAddr(network, host)
		if err != nil {
			return nil, api.WrapError(api.ErrCodeNetwork, "connection error", err).WithContext("address", address)
		}
		domain, sa = tcpSockaddr(tcpAddr)
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, api.WrapError(api.ErrCodeNetwork, "connection error", fmt.Errorf("socket create: %w", err))
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, api.WrapError(api.ErrCodeNetwork, "connection error", fmt.Errorf("set nonblock: %w", err))
	}
	if domain != unix.AF_UNIX {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS && err != unix.EINTR {
		_ = unix.Close(fd)
		return nil, api.WrapError(api.ErrCodeNetwork, "connection error", fmt.Errorf("connect: %w", err)).
			WithContext("address", address)
	}
	return &fdStream{fd: fd}, nil
}

func tcpSockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return unix.AF_INET6, sa
}

func (s *fdStream) Fd() int {
	return s.fd
}

func (s *fdStream) Peek(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, unix.EBADF
	}
	n, _, err := unix.Recvfrom(s.fd, p, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return ioResult(n, err)
}

func (s *fdStream) Read(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, unix.EBADF
	}
	n, err := unix.Read(s.fd, p)
	return ioResult(n, err)
}

func (s *fdStream) Write(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, unix.EBADF
	}
	n, err := unix.Write(s.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func ioResult(n int, err error) (int, error) {
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		return 0, ErrWouldBlock
	case err != nil:
		return 0, err
	case n < 0:
		return 0, ErrWouldBlock
	}
	return n, nil
}

func (s *fdStream) PeerName() (string, error) {
	if s.fd < 0 {
		return "", unix.EBADF
	}
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return "", err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), fmt.Sprint(a.Port)), nil
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), fmt.Sprint(a.Port)), nil
	case *unix.SockaddrUnix:
		return a.Name, nil
	}
	return "", nil
}

func (s *fdStream) SocketError() error {
	if s.fd < 0 {
		return unix.EBADF
	}
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func (s *fdStream) SetBlocking(blocking bool) error {
	if s.fd < 0 {
		return unix.EBADF
	}
	return unix.SetNonblock(s.fd, !blocking)
}

func (s *fdStream) WaitReady(interest api.Interest, timeout time.Duration) (bool, error) {
	if s.fd < 0 {
		return false, unix.EBADF
	}
	var events int16
	if interest&api.InterestRead != 0 {
		events |= unix.POLLIN
	}
	if interest&api.InterestWrite != 0 {
		events |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	for {
		n, err := unix.Poll(fds, PollTimeoutMs(timeout))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents != 0, nil
	}
}

func (s *fdStream) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	_ = unix.Shutdown(fd, unix.SHUT_RDWR)
	return unix.Close(fd)
}
