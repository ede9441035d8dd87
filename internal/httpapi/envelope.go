// Package httpapi implements the REST request/response surface: session
// lifecycle, chat turns, tool invocations, workflow execution, and the
// operational endpoints (health, metrics, alerts).
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"supportcore/internal/apperr"
	"supportcore/internal/security"
)

// errorBody is the "error" object inside an error envelope.
type errorBody struct {
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Retryable    bool           `json:"retryable"`
	RetryAfterMS *int64         `json:"retry_after_ms,omitempty"`
}

// errorEnvelope is the full error response body.
type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id"`
	Timestamp int64     `json:"timestamp"`
}

// codeByKind maps an apperr.Kind to one of the required error codes. Kept as
// its own table (rather than imported from internal/transport) since the two
// surfaces are independent packages that happen to agree on vocabulary.
var codeByKind = map[apperr.Kind]string{
	apperr.Validation:          "INVALID_REQUEST_FORMAT",
	apperr.Authorization:       "INVALID_SESSION",
	apperr.NotFound:            "SESSION_NOT_FOUND",
	apperr.RateLimited:         "RATE_LIMIT_EXCEEDED",
	apperr.ContentBlocked:      "CONTENT_BLOCKED",
	apperr.StorageError:        "STORAGE_ERROR",
	apperr.UpstreamUnavailable: "AI_SERVICE_UNAVAILABLE",
	apperr.Timeout:             "SERVICE_DEGRADED",
	apperr.ToolFailed:          "TOOL_EXECUTION_FAILED",
	apperr.WorkflowFailed:      "WORKFLOW_EXECUTION_FAILED",
	apperr.Internal:            "INTERNAL_ERROR",
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes err as an error envelope, picking the HTTP status from
// apperr's kind-to-status table and the error code from codeByKind.
func respondError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Wrap(apperr.Internal, "internal error", err)
	}
	code, ok := codeByKind[e.Kind]
	if !ok {
		code = "INTERNAL_ERROR"
	}

	body := errorBody{
		Code:      code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
	}
	if e.Kind == apperr.RateLimited {
		if ms, ok := e.Details["retry_after_ms"].(int64); ok {
			body.RetryAfterMS = &ms
		}
		writeRateLimitHeaders(w, e.Details)
	}

	respondJSON(w, e.HTTPStatus(), errorEnvelope{
		Error:     body,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// writeRateLimitResultHeaders sets the X-RateLimit-* headers from a
// successful security.RateLimitResult, e.g. the one carried on a
// pipeline.Response after a chat turn clears the gate.
func writeRateLimitResultHeaders(w http.ResponseWriter, scope string, rl security.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetUnix, 10))
	w.Header().Set("X-RateLimit-Scope", scope)
}

// writeRateLimitHeaders sets the X-RateLimit-* headers from a details map
// shaped like the one security.Gate.Check attaches to a RateLimited error
// (limit, remaining, reset_unix, scope).
func writeRateLimitHeaders(w http.ResponseWriter, details map[string]any) {
	if v, ok := details["limit"].(int); ok {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(v))
	}
	if v, ok := details["remaining"].(int); ok {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v))
	}
	if v, ok := details["reset_unix"].(int64); ok {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(v, 10))
	}
	if v, ok := details["scope"].(string); ok {
		w.Header().Set("X-RateLimit-Scope", v)
	}
}
