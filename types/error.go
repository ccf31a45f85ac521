package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the memory engine.
type ErrorCode string

// Memory engine error codes
const (
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrPersistenceFailure   ErrorCode = "PERSISTENCE_FAILURE"
	ErrScoringUnavailable   ErrorCode = "SCORING_UNAVAILABLE"
	ErrConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
	ErrStoreClosed          ErrorCode = "STORE_CLOSED"
	ErrCorruptRecord        ErrorCode = "CORRUPT_RECORD"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	EntryID   string    `json:"entry_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is matching by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithEntryID tags the error with the entry it concerns.
func (e *Error) WithEntryID(id string) *Error {
	e.EntryID = id
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NotFoundError returns a NOT_FOUND error for the given entry id.
func NotFoundError(id string) *Error {
	return NewError(ErrNotFound, "memory entry not found").WithEntryID(id)
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrNotFound
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
