//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

// File: reactor/poll_other.go
// Author: momentics <momentics@gmail.com>

package reactor

import "github.com/momentics/hioload-sockets/api"

func pollWait(entries []pollEntry, timeoutMs int) (int, error) {
	return 0, api.ErrNotSupported
}
