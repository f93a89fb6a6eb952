package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorType represents the kind of failure a harvest step ran into
type ErrorType string

const (
	ErrorTypePageLoadTimeout   ErrorType = "page_load_timeout"
	ErrorTypeDriverInit        ErrorType = "driver_init"
	ErrorTypeHeuristicFailure  ErrorType = "extraction_heuristic_failure"
	ErrorTypeBlockedPage       ErrorType = "blocked_page_unrecoverable"
	ErrorTypeFetchTransport    ErrorType = "fetch_transport"
	ErrorTypeFetchStatus       ErrorType = "fetch_status"
	ErrorTypeContentTooSmall   ErrorType = "content_too_small"
	ErrorTypeContentTooLarge   ErrorType = "content_too_large"
	ErrorTypeDecode            ErrorType = "decode"
	ErrorTypeDimensionTooSmall ErrorType = "dimension_too_small"
	ErrorTypePersist           ErrorType = "persist"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error is a typed harvest error. Code carries the HTTP status for
// fetch_status errors and is zero otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	URL     string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error wrapping cause (which may be nil)
func New(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Err: cause}
}

// NewStatus creates a fetch_status error for the given HTTP status code
func NewStatus(code int, url string) *Error {
	return &Error{
		Type:    ErrorTypeFetchStatus,
		Message: fmt.Sprintf("unexpected status code %d", code),
		Code:    code,
		URL:     url,
	}
}

// TypeOf extracts the ErrorType from err, or ErrorTypeUnknown when err is
// not a typed error. A nil error has no type.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is a typed error of kind t
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsCanceled reports whether err stems from a cancelled context
func IsCanceled(err error) bool {
	return err != nil && stderrors.Is(err, context.Canceled)
}

// IsRetryable checks if an error is worth another fetch attempt
func IsRetryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeFetchTransport:
		return true
	case ErrorTypeFetchStatus:
		return IsRetryableStatusCode(e.Code)
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404, 410:
		return false
	default:
		return statusCode >= 500
	}
}
