package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Generation error codes
const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrUserCancelled        ErrorCode = "USER_CANCELLED"
	ErrServiceFailure       ErrorCode = "SERVICE_FAILURE"
	ErrContentBlocked       ErrorCode = "CONTENT_BLOCKED"
	ErrQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"
	ErrExtensionUnavailable ErrorCode = "EXTENSION_UNAVAILABLE"
)

// Store error codes
const (
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrSceneNotFound   ErrorCode = "SCENE_NOT_FOUND"
	ErrStorageCapacity ErrorCode = "STORAGE_CAPACITY"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// StoppedMessage is the only message ever shown for a caller-initiated
// cancellation. It must never be conflated with a service failure.
const StoppedMessage = "Stopped"

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewStoppedError creates the canonical caller-initiated cancellation error.
func NewStoppedError() *Error {
	return NewError(ErrUserCancelled, StoppedMessage)
}

// NewServiceError wraps an error reported by the generation service.
func NewServiceError(cause error) *Error {
	return NewError(ErrServiceFailure, "generation service error").WithCause(cause).WithRetryable(true)
}

// IsStopped reports whether err is a caller-initiated cancellation.
func IsStopped(err error) bool {
	return IsErrorCode(err, ErrUserCancelled)
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
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

// UserMessage returns the text recorded on a scene or clip for err.
// Cancellations always render as StoppedMessage; structured service errors
// render their message plus cause so the rest of the session stays usable
// with a scene-local explanation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsStopped(err) {
		return StoppedMessage
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
