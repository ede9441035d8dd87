package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"supportcore/internal/apperr"
	"supportcore/internal/memory"
)

type createSessionRequest struct {
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type createSessionResponse struct {
	SessionID     string         `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Status        memory.Status  `json:"status"`
	Configuration map[string]any `json:"configuration"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
			return
		}
	}

	metadata := req.Metadata
	if req.UserID != "" {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["user_id"] = req.UserID
	}

	sessionID := uuid.NewString()
	sess, err := s.mem.InitSession(r.Context(), sessionID, metadata)
	if err != nil {
		respondError(w, err)
		return
	}

	ttlHours := s.cfg.SessionTTLHours
	if ttlHours <= 0 {
		ttlHours = 24
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.CreatedAt.Add(time.Duration(ttlHours) * time.Hour),
		Status:    sess.Status,
		Configuration: map[string]any{
			"max_messages":    s.cfg.MaxMessages,
			"keep_recent":     s.cfg.KeepRecent,
			"summary_trigger": s.cfg.SummaryTrigger,
		},
	})
}

type sessionSnapshot struct {
	SessionID      string               `json:"session_id"`
	Status         memory.Status        `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	LastActivity   time.Time            `json:"last_activity"`
	Summary        string               `json:"summary,omitempty"`
	Messages       []memory.ChatMessage `json:"messages"`
	Topics         []string             `json:"topics,omitempty"`
	ResolvedIssues []string             `json:"resolved_issues,omitempty"`
}

func (s *Server) handleFetchSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.mem.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	convCtx, err := s.mem.GetContext(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	messages := paginate(convCtx.Messages, offset, limit)

	snapshot := sessionSnapshot{
		SessionID:      id,
		Status:         sess.Status,
		CreatedAt:      sess.CreatedAt,
		LastActivity:   sess.LastActivity,
		Messages:       messages,
		Topics:         convCtx.Topics,
		ResolvedIssues: convCtx.ResolvedIssues,
	}
	if r.URL.Query().Get("include_summary") == "true" {
		snapshot.Summary = convCtx.Summary
	}
	respondJSON(w, http.StatusOK, snapshot)
}

type endSessionResponse struct {
	SessionID  string        `json:"session_id"`
	Status     memory.Status `json:"status"`
	Summary    string        `json:"summary"`
	DurationMS int64         `json:"duration_ms"`
}

// handleEndSession is idempotent: once a session has already been archived
// its actor is gone, so a repeat call finds no hot state and reports the
// same terminal status with a zeroed summary/duration rather than erroring.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	sess, err := s.mem.GetSession(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			respondJSON(w, http.StatusOK, endSessionResponse{SessionID: id, Status: memory.StatusEnded})
			return
		}
		respondError(w, err)
		return
	}

	summary, err := s.mem.GenerateSummary(ctx, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.mem.ArchiveSession(ctx, id); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, endSessionResponse{
		SessionID:  id,
		Status:     memory.StatusEnded,
		Summary:    summary,
		DurationMS: time.Since(sess.CreatedAt).Milliseconds(),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func paginate(msgs []memory.ChatMessage, offset, limit int) []memory.ChatMessage {
	if offset >= len(msgs) {
		return []memory.ChatMessage{}
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end]
}
