// Package errors provides structured error handling for storepulse
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents conflict errors
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeRateLimit represents rate limit errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents authentication errors
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeCapability represents capability/feature not supported errors
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeRemote represents non-success responses from a remote API
	ErrorTypeRemote ErrorType = "remote"
)

// Typed is implemented by domain errors that belong to an ErrorType
// category without being an *Error themselves.
type Typed interface {
	error
	Type() ErrorType
}

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err under a new category. It returns nil for a nil err; do not
// return that result directly as an error interface.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// Annotate adds context to err while keeping its category, falling back to
// fallback when err is uncategorized.
func Annotate(err error, fallback ErrorType, message string) error {
	if err == nil {
		return nil
	}
	errType := TypeOf(err)
	if errType == "" {
		errType = fallback
	}
	return &Error{Type: errType, Message: message, Cause: err}
}

// DetailsOf merges the details of every *Error in the chain, outermost
// first wins.
func DetailsOf(err error) map[string]interface{} {
	out := make(map[string]interface{})
	for err != nil {
		if e, ok := err.(*Error); ok {
			for k, v := range e.Details {
				if _, seen := out[k]; !seen {
					out[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return out
}

// ExitCode maps the category of err to a process exit status: 0 for nil,
// 2 for bad configuration or input, 3 for rejected credentials, 4 for
// remote and transport failures, 5 for malformed data and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch TypeOf(err) {
	case ErrorTypeConfig, ErrorTypeValidation:
		return 2
	case ErrorTypeAuthentication:
		return 3
	case ErrorTypeRemote, ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNotFound:
		return 4
	case ErrorTypeData:
		return 5
	default:
		return 1
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// TypeOf returns the category of the outermost categorized error in the
// chain, or the empty string if none is found.
func TypeOf(err error) ErrorType {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Type
		}
		if t, ok := err.(Typed); ok {
			return t.Type()
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// Is, As and Unwrap re-export the standard library helpers so callers only
// need one errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
