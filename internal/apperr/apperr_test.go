package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewSetsDefaultRetryability(t *testing.T) {
	if New(Timeout, "deadline exceeded").Retryable != true {
		t.Fatalf("expected Timeout to be retryable by default")
	}
	if New(Validation, "bad input").Retryable != false {
		t.Fatalf("expected Validation to not be retryable by default")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Validation:          http.StatusBadRequest,
		RateLimited:         http.StatusTooManyRequests,
		NotFound:            http.StatusNotFound,
		UpstreamUnavailable: http.StatusBadGateway,
		Internal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := New(kind, "x").HTTPStatus(); got != want {
			t.Fatalf("kind %s: expected status %d, got %d", kind, want, got)
		}
	}
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(StorageError, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestAsAndKindOf(t *testing.T) {
	err := New(ToolFailed, "tool exploded")
	if kind := KindOf(err); kind != ToolFailed {
		t.Fatalf("expected ToolFailed, got %s", kind)
	}
	if kind := KindOf(errors.New("plain error")); kind != Internal {
		t.Fatalf("expected Internal for non-apperr error, got %s", kind)
	}
	if _, ok := As(errors.New("plain")); ok {
		t.Fatalf("expected As to fail for non-apperr error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(Timeout, "x")) {
		t.Fatalf("expected Timeout error to be retryable")
	}
	if IsRetryable(New(Validation, "x")) {
		t.Fatalf("expected Validation error to not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected plain error to not be retryable")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(Validation, "bad field").WithDetails(map[string]any{"field": "email"})
	if err.Details["field"] != "email" {
		t.Fatalf("expected details to be attached, got %+v", err.Details)
	}
}
