// Package memory implements the per-session conversation actor: append-only
// message history, trimming/summarization, active-topic extraction, and
// archive/restore across hot, warm, and cold storage tiers.
package memory

import (
	"context"
	"time"

	"supportcore/internal/llm"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusIdle     Status = "idle"
	StatusEnded    Status = "ended"
	StatusArchived Status = "archived"
)

// Session is the identity and lifecycle record a Memory is attached to.
type Session struct {
	ID           string
	UserID       string
	Status       Status
	CreatedAt    time.Time
	LastActivity time.Time
	Metadata     map[string]any
}

// ChatMessage is a single append-only conversation turn.
type ChatMessage struct {
	ID          string
	Role        string // user, assistant, system, tool
	Content     string
	TimestampMS int64
	ToolCalls   []llm.ToolCall
	ToolID      string
	Metrics     map[string]any
}

// ConversationMemory is a session's bounded message history plus derived
// summary/topic/resolved-issue state.
type ConversationMemory struct {
	SessionID      string
	Messages       []ChatMessage
	Summary        string
	Topics         map[string]struct{}
	ResolvedIssues map[string]struct{}
	LastSummaryAt  time.Time
	TTL            time.Duration
	// SinceLastSummary counts messages appended since the summary was last
	// refreshed (by trimming or an explicit generateSummary call), driving
	// the SUMMARY_TRIGGER background-summarization check independently of
	// the MAX_MESSAGES trimming threshold.
	SinceLastSummary int
}

// ConversationContext is the read-only snapshot getContext returns.
type ConversationContext struct {
	SessionID      string
	Summary        string
	Messages       []ChatMessage
	Topics         []string
	ResolvedIssues []string
}

// MaxContextMessages bounds the tail getContext returns.
const MaxContextMessages = 20

// KVStore is the durable key-value backend used for both the actor's own
// hot state (keys "session:<id>", "memory:<id>") and the warm metadata tier
// (archive pointers, error logs, alerts) — both are Redis-backed sliding or
// point reads in practice, so one narrow interface covers both roles.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrNotFoundInStore is returned by KVStore.Get when the key is absent.
var ErrNotFoundInStore = errNotFoundInStore{}

type errNotFoundInStore struct{}

func (errNotFoundInStore) Error() string { return "key not found" }
