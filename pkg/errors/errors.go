package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors the remote store can return
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeClient      ErrorType = "client"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a failed remote write with type information.
// Code is the HTTP status, 0 when the request never got a response.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Cause   error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether re-issuing the request may succeed.
func (e *Error) Retryable() bool {
	return IsRetryable(e.Type)
}

// New builds an Error of the given type.
func New(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Network wraps a transport failure.
func Network(cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: cause.Error(), Cause: cause}
}

// FromStatus classifies a non-2xx HTTP status.
func FromStatus(statusCode int, message string) *Error {
	return &Error{Type: TypeForStatus(statusCode), Code: statusCode, Message: message}
}

// TypeForStatus maps an HTTP status to an error type
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	case statusCode >= 400:
		return ErrorTypeClient
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	return IsRetryable(TypeForStatus(statusCode))
}

// IsRetryableError reports whether err carries a retryable *Error.
func IsRetryableError(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// TypeOf returns the type of the *Error in err's chain, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}
