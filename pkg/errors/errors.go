package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType classifies failures so callers can decide between aborting a run,
// recording a failure, or retrying.
type ErrorType string

const (
	ErrorTypeAddressParse      ErrorType = "address_parse"
	ErrorTypeCrawlTransport    ErrorType = "crawl_transport"
	ErrorTypeAttachmentFetch   ErrorType = "attachment_fetch"
	ErrorTypeTransferTransport ErrorType = "transfer_transport"
	ErrorTypeTransferStatus    ErrorType = "transfer_status"
	ErrorTypeWrite             ErrorType = "write"

	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a typed error carrying an optional HTTP status code and cause.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Type) + " error"
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given type.
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates an Error of the given type around cause.
func Wrap(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Message: message, Err: cause}
}

// WithCode creates an Error of the given type for an HTTP status.
func WithCode(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err carries none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is an Error of type t.
func Is(err error, t ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == t
}

// IsFatal reports whether err must abort a whole run. Everything else is
// recorded at post or file level and the run continues.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeAddressParse, ErrorTypeCrawlTransport:
		return true
	default:
		return false
	}
}

// FromStatus maps an HTTP status code to an ErrorType.
func FromStatus(code int) ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusNotFound:
		return ErrorTypeNotFound
	case code >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
