package transport

import "supportcore/internal/apperr"

// codeByKind maps an apperr.Kind to one of the required error codes so the
// WebSocket error frame carries the same vocabulary internal/httpapi uses in
// its REST error envelope.
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

// classifyError derives the error-frame code and, for rate-limited errors,
// the retry-after duration the gate attached to the error's details.
func classifyError(err error) (code string, retryAfterMS *int64) {
	e, ok := apperr.As(err)
	if !ok {
		return "INTERNAL_ERROR", nil
	}
	code, ok = codeByKind[e.Kind]
	if !ok {
		code = "INTERNAL_ERROR"
	}
	if e.Kind == apperr.RateLimited && e.Details != nil {
		if ms, ok := e.Details["retry_after_ms"].(int64); ok {
			retryAfterMS = &ms
		}
	}
	return code, retryAfterMS
}
