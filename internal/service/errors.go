package service

import (
	"errors"
	"fmt"
)

// ErrorKind labels the failure classes surfaced by the evaluation workflow.
// Exactly one kind is attached to every error that crosses the service
// boundary, so callers branch on the kind instead of parsing message text.
type ErrorKind string

const (
	// KindNotFound indicates a referenced document, user or evaluation is missing.
	KindNotFound ErrorKind = "not_found"
	// KindForbidden indicates an ownership or authorization failure.
	KindForbidden ErrorKind = "forbidden"
	// KindInvalidArgument indicates a malformed caller-supplied value.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindInvalidDocument indicates the content failed domain classification.
	// User-correctable and non-retryable as-is.
	KindInvalidDocument ErrorKind = "invalid_document_type"
	// KindQuotaExceeded indicates the caller exhausted the hourly evaluation window.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindRateLimited indicates the upstream oracle throttled the request.
	KindRateLimited ErrorKind = "rate_limited"
	// KindServerError is the opaque catch-all for extraction, oracle and internal failures.
	KindServerError ErrorKind = "server_error"
)

// Error is the tagged error type carried across the service boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	// RetryAfterMinutes is set for KindQuotaExceeded so callers can surface
	// the remaining window time.
	RetryAfterMinutes int
	Err               error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a tagged error from a format string.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a tagged error preserving the underlying cause for
// diagnostics and unwrapping.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, collapsing untagged errors to KindServerError.
func KindOf(err error) ErrorKind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindServerError
}
