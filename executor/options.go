// File: executor/options.go
// Package executor defines functional options for the RequestExecutor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/internal/xlog"
	"github.com/momentics/hioload-sockets/reactor"
)

const (
	DefaultConnectionTimeout = 60 * time.Second
	DefaultIOTimeout         = 60 * time.Second

	// cancelPollInterval bounds how long a cancelled context goes unnoticed.
	cancelPollInterval = 100 * time.Millisecond
)

type config struct {
	backendFactory    api.BackendFactory
	logger            *zap.Logger
	connectionTimeout time.Duration
	ioTimeout         time.Duration
}

func defaultConfig() config {
	return config{
		backendFactory:    reactor.DefaultFactory(),
		connectionTimeout: DefaultConnectionTimeout,
		ioTimeout:         DefaultIOTimeout,
	}
}

// Option customizes executor initialization.
type Option func(*config)

// WithBackendFactory selects the readiness backend built for every Execute run.
func WithBackendFactory(f api.BackendFactory) Option {
	return func(c *config) {
		if f != nil {
			c.backendFactory = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithDefaultConnectionTimeout applies to sockets without their own.
func WithDefaultConnectionTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.connectionTimeout = d
		}
	}
}

// WithDefaultIOTimeout applies to sockets without their own.
func WithDefaultIOTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ioTimeout = d
		}
	}
}

func (c *config) finish() {
	if c.logger == nil {
		c.logger = xlog.Named("executor")
	}
}
