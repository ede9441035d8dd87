package tools

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ticket priorities and their default resolution SLAs.
var resolutionSLA = map[string]time.Duration{
	"urgent": 4 * time.Hour,
	"high":   24 * time.Hour,
	"medium": 72 * time.Hour,
	"low":    168 * time.Hour,
}

var validTicketStatuses = map[string]struct{}{
	"open": {}, "in_progress": {}, "waiting_on_user": {}, "resolved": {}, "closed": {},
}

type ticketingParams struct {
	Action     string          `json:"action"`
	TicketData json.RawMessage `json:"ticket_data"`
	TicketID   string          `json:"ticket_id"`
	UpdateData json.RawMessage `json:"update_data"`
}

type ticketCreate struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    string         `json:"priority"`
	Category    string         `json:"category"`
	UserEmail   string         `json:"user_email"`
	Metadata    map[string]any `json:"metadata"`
}

type ticketUpdate struct {
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssignedTo string `json:"assigned_to"`
	Resolution string `json:"resolution"`
}

// TicketingTool implements the create/status/update ticketing actions
// against a Postgres-backed ticket table.
type TicketingTool struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewTicketingTool builds a TicketingTool around pool.
func NewTicketingTool(pool *pgxpool.Pool) *TicketingTool {
	return &TicketingTool{pool: pool}
}

func (t *TicketingTool) Name() string         { return "ticketing" }
func (t *TicketingTool) Description() string  { return "Create, inspect, or update a support ticket." }
func (t *TicketingTool) Permissions() []string { return []string{"ticketing:write"} }
func (t *TicketingTool) Timeout() time.Duration { return t.timeout }

func (t *TicketingTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":      map[string]any{"type": "string", "enum": []any{"create", "status", "update"}},
			"ticket_data": map[string]any{"type": "object"},
			"ticket_id":   map[string]any{"type": "string"},
			"update_data": map[string]any{"type": "object"},
		},
		"required": []any{"action"},
	}
}

// Init creates the ticket table if it does not already exist.
func (t *TicketingTool) Init(ctx context.Context) error {
	if t.pool == nil {
		return errors.New("ticketing tool requires a pool")
	}
	_, err := t.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS support_tickets (
    ticket_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    priority TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    user_email TEXT NOT NULL DEFAULT '',
    assigned_to TEXT NOT NULL DEFAULT '',
    resolution TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	return err
}

func (t *TicketingTool) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	var p ticketingParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode ticketing params: %w", err)
	}
	switch p.Action {
	case "create":
		return t.create(ctx, p.TicketData)
	case "status":
		return t.status(ctx, p.TicketID)
	case "update":
		return t.update(ctx, p.TicketID, p.UpdateData)
	default:
		return nil, fmt.Errorf("unknown ticketing action %q", p.Action)
	}
}

func (t *TicketingTool) create(ctx context.Context, raw json.RawMessage) (any, error) {
	var c ticketCreate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode ticket_data: %w", err)
	}
	if c.Title == "" || c.Description == "" || c.Category == "" {
		return nil, errors.New("title, description, and category are required")
	}
	sla, ok := resolutionSLA[c.Priority]
	if !ok {
		return nil, fmt.Errorf("invalid priority %q", c.Priority)
	}

	id, err := newTicketID()
	if err != nil {
		return nil, fmt.Errorf("generate ticket id: %w", err)
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	createdAt := time.Now().UTC()
	_, err = t.pool.Exec(ctx, `
INSERT INTO support_tickets (ticket_id, title, description, priority, category, status, user_email, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'open', $6, $7, $8, $8)`,
		id, c.Title, c.Description, c.Priority, c.Category, c.UserEmail, metadataJSON, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}

	return map[string]any{
		"ticket_id":            id,
		"status":               "open",
		"created_at":           createdAt.Format(time.RFC3339),
		"estimated_resolution": createdAt.Add(sla).Format(time.RFC3339),
	}, nil
}

func (t *TicketingTool) status(ctx context.Context, ticketID string) (any, error) {
	if ticketID == "" {
		return nil, errors.New("ticket_id is required")
	}
	row := t.pool.QueryRow(ctx, `
SELECT ticket_id, status, priority, assigned_to, resolution, created_at, updated_at
FROM support_tickets WHERE ticket_id = $1`, ticketID)

	var (
		id, status, priority, assignedTo, resolution string
		createdAt, updatedAt                         time.Time
	)
	if err := row.Scan(&id, &status, &priority, &assignedTo, &resolution, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("Ticket not found")
		}
		return nil, fmt.Errorf("query ticket: %w", err)
	}
	return map[string]any{
		"ticket_id":   id,
		"status":      status,
		"priority":    priority,
		"assigned_to": assignedTo,
		"resolution":  resolution,
		"created_at":  createdAt.Format(time.RFC3339),
		"updated_at":  updatedAt.Format(time.RFC3339),
	}, nil
}

func (t *TicketingTool) update(ctx context.Context, ticketID string, raw json.RawMessage) (any, error) {
	if ticketID == "" {
		return nil, errors.New("ticket_id is required")
	}
	var u ticketUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode update_data: %w", err)
	}
	if u.Status != "" {
		if _, ok := validTicketStatuses[u.Status]; !ok {
			return nil, fmt.Errorf("invalid status %q", u.Status)
		}
	}

	tag, err := t.pool.Exec(ctx, `
UPDATE support_tickets SET
    status      = CASE WHEN $2 <> '' THEN $2 ELSE status END,
    priority    = CASE WHEN $3 <> '' THEN $3 ELSE priority END,
    assigned_to = CASE WHEN $4 <> '' THEN $4 ELSE assigned_to END,
    resolution  = CASE WHEN $5 <> '' THEN $5 ELSE resolution END,
    updated_at  = NOW()
WHERE ticket_id = $1`, ticketID, u.Status, u.Priority, u.AssignedTo, u.Resolution)
	if err != nil {
		return nil, fmt.Errorf("update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.New("Ticket not found")
	}
	return t.status(ctx, ticketID)
}

const ticketIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newTicketID produces an id matching TKT-<timestamp>-<alnum>.
func newTicketID() (string, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	for i, b := range suffix {
		suffix[i] = ticketIDAlphabet[int(b)%len(ticketIDAlphabet)]
	}
	return fmt.Sprintf("TKT-%d-%s", time.Now().UnixNano(), suffix), nil
}
