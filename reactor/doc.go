// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness multiplexers behind api.Backend: a
// portable poll(2) Selector and a Linux epoll reactor with registration epochs.
package reactor
