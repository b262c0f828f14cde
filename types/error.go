package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Workflow error codes
const (
	ErrInsufficientContext ErrorCode = "INSUFFICIENT_CONTEXT"
	ErrAttemptsExhausted   ErrorCode = "ATTEMPTS_EXHAUSTED"
	ErrRunAborted          ErrorCode = "RUN_ABORTED"
	ErrStepFailed          ErrorCode = "STEP_FAILED"
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
)

// Collaborator error codes
const (
	ErrSourceUnavailable   ErrorCode = "SOURCE_UNAVAILABLE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrProviderNotSet      ErrorCode = "PROVIDER_NOT_SET"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrBusPublish          ErrorCode = "BUS_PUBLISH"
)

// Error represents a structured error with code, message, and metadata.
// The Retryable flag is the single source of truth for the engine's
// retryable vs terminal failure taxonomy: a step returns a tagged outcome
// instead of relying on error unwinding across framework boundaries.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Step       string    `json:"step,omitempty"`
	Cause      error     `json:"-"`
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Retryable creates a retryable error: the run-level controller may restart
// the full step sequence in response.
func Retryable(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: true}
}

// Terminal creates a terminal error: the run aborts immediately, no further
// attempts.
func Terminal(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: false}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithStep records the step the error originated from.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// IsRetryable checks if an error is retryable. Unknown error types are
// treated as retryable-transient so that plain collaborator errors get the
// benefit of the step-level retry policy; use Terminal to opt out.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return err != nil
}

// IsTerminal reports whether an error explicitly aborts the run.
func IsTerminal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return !e.Retryable
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
