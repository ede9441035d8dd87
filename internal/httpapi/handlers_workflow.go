package httpapi

import (
	"encoding/json"
	"net/http"

	"supportcore/internal/apperr"
	"supportcore/internal/workflow"
)

type executeWorkflowRequest struct {
	Definition workflow.Definition `json:"definition"`
	Input      map[string]any      `json:"input,omitempty"`
	Context    map[string]any      `json:"context,omitempty"`
}

type executeWorkflowResponse struct {
	ExecutionID string `json:"execution_id"`
}

func (s *Server) handleWorkflowExecute(w http.ResponseWriter, r *http.Request) {
	var req executeWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	if req.Definition.ID == "" {
		respondError(w, apperr.New(apperr.Validation, "definition.id is required"))
		return
	}

	execID, err := s.engine.ExecuteWorkflow(r.Context(), req.Definition, req.Input, req.Context)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, executeWorkflowResponse{ExecutionID: execID})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	execID := r.PathValue("execID")
	exec, err := s.engine.GetStatus(r.Context(), execID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exec)
}
