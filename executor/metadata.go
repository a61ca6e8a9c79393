// File: executor/metadata.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-sockets/api"
)

// MetadataKey names one settable metadata field.
type MetadataKey string

const (
	MetaAddress           MetadataKey = "address"
	MetaOperation         MetadataKey = "operation"
	MetaConnectionTimeout MetadataKey = "connection_timeout"
	MetaIOTimeout         MetadataKey = "io_timeout"
	MetaUserContext       MetadataKey = "user_context"
	// MetaRequestComplete is maintained by the executor and cannot be set.
	MetaRequestComplete MetadataKey = "request_complete"
)

// Metadata is the per-socket request state owned by the executor. Timeouts of
// zero or less fall back to the executor defaults.
type Metadata struct {
	Address           string
	Operation         Operation
	ConnectionTimeout time.Duration
	IOTimeout         time.Duration
	UserContext       any

	// RequestComplete is set once a full frame was read or a write drained.
	RequestComplete bool
	// LastActivity is the base for deadline computation.
	LastActivity time.Time
}

// set applies one key. It validates the value type.
func (m *Metadata) set(key MetadataKey, value any) error {
	switch key {
	case MetaAddress:
		v, ok := value.(string)
		if !ok {
			return badValue(key, value)
		}
		m.Address = v
	case MetaOperation:
		v, ok := value.(Operation)
		if !ok || v == nil {
			return badValue(key, value)
		}
		m.Operation = v
	case MetaConnectionTimeout:
		v, ok := value.(time.Duration)
		if !ok {
			return badValue(key, value)
		}
		m.ConnectionTimeout = v
	case MetaIOTimeout:
		v, ok := value.(time.Duration)
		if !ok {
			return badValue(key, value)
		}
		m.IOTimeout = v
	case MetaUserContext:
		m.UserContext = value
	case MetaRequestComplete:
		return api.NewError(api.ErrCodeConfiguration, "metadata key is read-only").WithContext("key", string(key))
	default:
		return api.NewError(api.ErrCodeConfiguration, "unknown metadata key").WithContext("key", string(key))
	}
	return nil
}

func badValue(key MetadataKey, value any) error {
	return api.NewError(api.ErrCodeConfiguration, "invalid metadata value").
		WithContext("key", string(key)).
		WithContext("type", fmt.Sprintf("%T", value))
}

// validateMetadataKey rejects keys that can never be set.
func validateMetadataKey(key MetadataKey, value any) error {
	var probe Metadata
	return probe.set(key, value)
}
