package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the kind of failure an adapter or the relay reports
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeSessionClosed ErrorType = "session_closed"
	ErrorTypeSend          ErrorType = "send"
	ErrorTypeDownload      ErrorType = "download"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeState         ErrorType = "state"
	ErrorTypeParsing       ErrorType = "parsing"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Default waits suggested to callers when the upstream gave no hint.
const (
	DefaultRateLimitWait  = 10 * time.Minute
	DefaultConnectionWait = 30 * time.Second
)

// Error represents a classified failure with optional retry and remediation hints
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// RetryAfter is set for rate_limit and other transient errors when known.
	RetryAfter time.Duration
	// Remediation is shown to the operator for configuration and auth errors.
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// RateLimited creates a rate_limit error. A zero retryAfter uses DefaultRateLimitWait.
func RateLimited(message string, retryAfter time.Duration) *Error {
	if retryAfter <= 0 {
		retryAfter = DefaultRateLimitWait
	}
	return &Error{Type: ErrorTypeRateLimit, Message: message, Code: 429, RetryAfter: retryAfter}
}

// SessionClosed creates a session_closed error for a delivery channel that went away
func SessionClosed(message string, err error) *Error {
	return &Error{Type: ErrorTypeSessionClosed, Message: message, Err: err, RetryAfter: DefaultConnectionWait}
}

// Configuration creates a configuration error with remediation text
func Configuration(message, remediation string) *Error {
	return &Error{Type: ErrorTypeConfiguration, Message: message, Remediation: remediation}
}

// TypeOf returns the type of the first *Error in err's chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// RetryAfter returns the retry hint carried by err, or zero
func RetryAfter(err error) time.Duration {
	var e *Error
	if stderrors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Remediation returns the operator hint carried by err, or an empty string
func Remediation(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Remediation
	}
	return ""
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeSessionClosed:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is worth another attempt
func IsTransient(err error) bool {
	return err != nil && IsRetryable(TypeOf(err))
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatus maps an HTTP status code to a typed error
func FromStatus(statusCode int, message string) *Error {
	var t ErrorType
	switch {
	case statusCode == 401 || statusCode == 403:
		t = ErrorTypeAuth
	case statusCode == 404:
		t = ErrorTypeNotFound
	case statusCode == 429:
		return &Error{Type: ErrorTypeRateLimit, Message: message, Code: statusCode, RetryAfter: DefaultRateLimitWait}
	case statusCode >= 500:
		t = ErrorTypeServerError
	default:
		t = ErrorTypeUnknown
	}
	return &Error{Type: t, Message: message, Code: statusCode}
}
