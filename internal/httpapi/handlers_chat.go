package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"supportcore/internal/apperr"
	"supportcore/internal/llm"
	"supportcore/internal/pipeline"
	"supportcore/internal/security"
)

type chatRequest struct {
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
}

type chatResponse struct {
	SessionID   string         `json:"session_id"`
	MessageID   string         `json:"message_id"`
	Content     string         `json:"content"`
	ToolCalls   []llm.ToolCall `json:"tool_calls,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Correlation string         `json:"correlation_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	if req.Content == "" {
		respondError(w, apperr.New(apperr.Validation, "content is required").
			WithDetails(map[string]any{"field": "content"}))
		return
	}

	perms := make(map[string]struct{}, len(req.Capabilities))
	for _, c := range req.Capabilities {
		perms[c] = struct{}{}
	}

	resp, err := s.handler.Handle(r.Context(), pipeline.Request{
		SessionID:   id,
		MessageID:   uuid.NewString(),
		Content:     req.Content,
		Permissions: perms,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	writeRateLimitResultHeaders(w, string(security.KindRequests), resp.RateLimit)
	respondJSON(w, http.StatusOK, chatResponse{
		SessionID:   id,
		MessageID:   resp.MessageID,
		Content:     resp.Content,
		ToolCalls:   resp.ToolCalls,
		Metadata:    map[string]any{"fallback_used": resp.FallbackUsed},
		Correlation: resp.CorrelationID,
	})
}
