// control/config.go
// Author: momentics <momentics@gmail.com>
//
// YAML run configuration: backend, timeouts, logging and the request list.

package control

import (
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-sockets/api"
	"github.com/momentics/hioload-sockets/executor"
	"github.com/momentics/hioload-sockets/frame"
	"github.com/momentics/hioload-sockets/reactor"
)

// Frame picker names accepted in configuration.
const (
	FrameNull      = "null"
	FrameDelimiter = "delimiter"
	FrameFixed     = "fixed"
	FrameLength    = "length"
)

// DefaultMaxFrameLength bounds length-prefixed frames when max_length is unset.
const DefaultMaxFrameLength = 16 << 20

// Config is the run configuration.
type Config struct {
	Backend           string        `yaml:"backend"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	IOTimeout         time.Duration `yaml:"io_timeout"`
	Log               LogConfig     `yaml:"log"`
	Requests          []Request     `yaml:"requests"`
}

// LogConfig selects log level and optional rotating file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Request is one socket: what to send and how to frame the reply.
type Request struct {
	Address string      `yaml:"address"`
	Send    string      `yaml:"send"`
	Frame   FrameConfig `yaml:"frame"`
}

// FrameConfig names a picker and its parameters.
type FrameConfig struct {
	Kind      string `yaml:"kind"`
	Delimiter string `yaml:"delimiter"`
	Length    int    `yaml:"length"`
	MaxLength int    `yaml:"max_length"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:           reactor.BackendAuto,
		ConnectionTimeout: executor.DefaultConnectionTimeout,
		IOTimeout:         executor.DefaultIOTimeout,
		Log:               LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, api.WrapError(api.ErrCodeConfiguration, "failed to read config", err).WithContext("path", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, api.WrapError(api.ErrCodeConfiguration, "failed to parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks names and bounds.
func (c *Config) Validate() error {
	if _, err := reactor.FactoryByName(c.Backend); err != nil {
		return err
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return api.WrapError(api.ErrCodeConfiguration, "invalid log level", err)
		}
	}
	if c.ConnectionTimeout < 0 || c.IOTimeout < 0 {
		return api.NewError(api.ErrCodeConfiguration, "timeouts must not be negative")
	}
	for i, r := range c.Requests {
		if r.Address == "" {
			return api.NewError(api.ErrCodeConfiguration, "request address is empty").WithContext("request", i)
		}
		if _, err := r.Frame.PickerFactory(); err != nil {
			return err
		}
	}
	return nil
}

// PickerFactory builds the configured picker factory. An empty kind reads
// until the remote side closes.
func (f FrameConfig) PickerFactory() (frame.PickerFactory, error) {
	switch f.Kind {
	case "", FrameNull:
		return frame.NewNullPicker, nil
	case FrameDelimiter:
		if f.Delimiter == "" {
			return nil, api.NewError(api.ErrCodeConfiguration, "delimiter frame needs a delimiter")
		}
		return frame.DelimiterFactory([]byte(f.Delimiter), f.MaxLength), nil
	case FrameFixed:
		if f.Length <= 0 {
			return nil, api.NewError(api.ErrCodeConfiguration, "fixed frame needs a positive length")
		}
		return frame.FixedLengthFactory(f.Length), nil
	case FrameLength:
		limit := f.MaxLength
		if limit <= 0 {
			limit = DefaultMaxFrameLength
		}
		return frame.LengthPrefixFactory(limit), nil
	}
	return nil, api.NewError(api.ErrCodeConfiguration, "unknown frame kind").WithContext("kind", f.Kind)
}
