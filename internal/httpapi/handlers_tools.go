package httpapi

import (
	"encoding/json"
	"net/http"

	"supportcore/internal/apperr"
	"supportcore/internal/tools"
)

// adminInvocationContext grants every permission tag the registered tools
// declare, since REST callers of these endpoints are trusted internal
// clients rather than LLM-issued tool calls constrained by a chat session's
// capabilities.
func (s *Server) adminInvocationContext() tools.InvocationContext {
	return tools.InvocationContext{Permissions: map[string]struct{}{
		"kb:read":         {},
		"ticketing:write": {},
	}}
}

func (s *Server) handleKBSearch(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeRawBody(r)
	if err != nil {
		respondError(w, err)
		return
	}
	result := s.registry.Execute(r.Context(), s.adminInvocationContext(), "kb_search", raw)
	respondToolResult(w, result)
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeRawBody(r)
	if err != nil {
		respondError(w, err)
		return
	}
	result := s.registry.Execute(r.Context(), s.adminInvocationContext(), "ticketing", raw)
	respondToolResult(w, result)
}

func decodeRawBody(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed request body", err)
	}
	return raw, nil
}

func respondToolResult(w http.ResponseWriter, result tools.ToolResult) {
	if !result.Success {
		respondError(w, apperr.New(apperr.ToolFailed, result.Error))
		return
	}
	respondJSON(w, http.StatusOK, result.Data)
}
