// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by sockets, selectors, backends and the request executor.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodeConfiguration: missing address, no sockets, malformed registration input.
	ErrCodeConfiguration
	// ErrCodeInvalidState: stale use of a selector or executor, e.g. probing with
	// nothing registered. Matches ErrConfiguration as well.
	ErrCodeInvalidState
	// ErrCodeNetwork: connect refused, read/write failure, unexpected remote close.
	ErrCodeNetwork
	// ErrCodeFrame: stream ended before the frame picker reported completion.
	ErrCodeFrame
	// ErrCodeTimeout: readiness wait elapsed with nothing ready.
	ErrCodeTimeout
	// ErrCodeSelector: the readiness mechanism itself failed.
	ErrCodeSelector
	ErrCodeNotSupported
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeConfiguration:
		return "configuration"
	case ErrCodeInvalidState:
		return "invalid state"
	case ErrCodeNetwork:
		return "network"
	case ErrCodeFrame:
		return "frame"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeSelector:
		return "selector"
	case ErrCodeNotSupported:
		return "not supported"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrConfiguration = &Error{Code: ErrCodeConfiguration}
	ErrInvalidState  = &Error{Code: ErrCodeInvalidState}
	ErrNetwork       = &Error{Code: ErrCodeNetwork}
	ErrFrame         = &Error{Code: ErrCodeFrame}
	ErrTimeout       = &Error{Code: ErrCodeTimeout}
	ErrSelector      = &Error{Code: ErrCodeSelector}
	ErrNotSupported  = &Error{Code: ErrCodeNotSupported}
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String() + " error"
	}
	if len(e.Context) != 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by code. An invalid state error is a configuration error
// too: both are caller mistakes rather than runtime conditions.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == ErrCodeConfiguration && e.Code == ErrCodeInvalidState
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a structured error around a cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the code of the first *Error in the chain.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if err == nil {
		return ErrCodeOK
	}
	return -1
}
