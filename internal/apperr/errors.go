// Package apperr defines the closed set of error codes surfaced by the
// service layer. The HTTP boundary maps each code to a status exactly once.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a failure
type Code int

const (
	Internal Code = iota
	Unauthenticated
	PermissionDenied
	FailedPrecondition
	AlreadyExists
	ResourceExhausted
	InvalidArgument
)

// String returns the stable machine-readable name of the code
func (c Code) String() string {
	switch c {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case ResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}

// Error is a tagged error carrying a code and a caller-safe message.
// Err holds the underlying cause for logging; it is never shown to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a tagged error around a cause
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first tagged error in err's chain,
// or Internal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// MessageOf returns the caller-safe message for err
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != Internal {
		return e.Message
	}
	return "An internal error occurred."
}
