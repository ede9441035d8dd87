// Package apperr defines the typed error taxonomy every inner component
// raises, consumed by internal/httpapi to build the error envelope and pick
// an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error so callers can branch on category instead of
// matching error strings.
type Kind string

const (
	Validation          Kind = "validation"
	Authorization       Kind = "authorization"
	NotFound            Kind = "not_found"
	RateLimited         Kind = "rate_limited"
	ContentBlocked      Kind = "content_blocked"
	StorageError        Kind = "storage_error"
	UpstreamUnavailable Kind = "upstream_unavailable"
	Timeout             Kind = "timeout"
	ToolFailed          Kind = "tool_failed"
	WorkflowFailed      Kind = "workflow_failed"
	Internal            Kind = "internal"
)

// statusByKind maps each Kind to the HTTP status internal/httpapi returns.
var statusByKind = map[Kind]int{
	Validation:          http.StatusBadRequest,
	Authorization:       http.StatusForbidden,
	NotFound:            http.StatusNotFound,
	RateLimited:         http.StatusTooManyRequests,
	ContentBlocked:      http.StatusUnprocessableEntity,
	StorageError:        http.StatusServiceUnavailable,
	UpstreamUnavailable: http.StatusBadGateway,
	Timeout:             http.StatusGatewayTimeout,
	ToolFailed:          http.StatusBadGateway,
	WorkflowFailed:      http.StatusInternalServerError,
	Internal:            http.StatusInternalServerError,
}

// retryableByDefault tracks which kinds are retried unless explicitly
// overridden: Validation/Authorization/NotFound/RateLimited/ContentBlocked
// are never retried; Timeout/UpstreamUnavailable/StorageError are retried
// with backoff.
var retryableByDefault = map[Kind]bool{
	Timeout:             true,
	UpstreamUnavailable: true,
	StorageError:        true,
}

// Error is the typed error value every component raises.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Details   map[string]any
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code internal/httpapi should write for e.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an Error of the given kind with the default retryability for
// that kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryableByDefault[kind]}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryableByDefault[kind], Cause: cause}
}

// WithDetails attaches field-level detail (e.g. validation failures) and
// returns the same Error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As extracts an *Error from err if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, otherwise
// Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// IsRetryable reports whether err should be retried by the caller.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}
