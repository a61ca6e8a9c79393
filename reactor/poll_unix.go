//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/poll_unix.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sockets/api"
)

// pollWait runs poll(2) over entries and stores the readiness back into them.
// Interrupted calls report zero ready descriptors.
func pollWait(entries []pollEntry, timeoutMs int) (int, error) {
	fds := make([]unix.PollFd, len(entries))
	for i, e := range entries {
		var events int16
		if e.events&api.InterestRead != 0 {
			events |= unix.POLLIN
		}
		if e.events&api.InterestWrite != 0 {
			events |= unix.POLLOUT
		}
		fds[i] = unix.PollFd{Fd: int32(e.fd), Events: events}
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	for i := range entries {
		var r api.Readiness
		re := fds[i].Revents
		if re&unix.POLLIN != 0 {
			r |= api.ReadyRead
		}
		if re&unix.POLLOUT != 0 {
			r |= api.ReadyWrite
		}
		if re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			r |= api.ReadyError
		}
		entries[i].revents = r
	}
	return n, nil
}
