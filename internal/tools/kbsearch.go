package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Article is a single knowledge-base search result.
type Article struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	URL       string  `json:"url"`
	Relevance float64 `json:"relevance"`
}

// KBBackend is the external knowledge-base collaborator. The only
// implementation here is InMemoryKBBackend, which cmd/supportd wires with no
// articles and tests fill with fixtures.
type KBBackend interface {
	Search(ctx context.Context, query string, filters map[string]any, maxResults int) ([]Article, error)
}

type kbSearchParams struct {
	Query      string         `json:"query"`
	MaxResults int            `json:"max_results"`
	Filters    map[string]any `json:"filters"`
}

// KBSearchTool exposes KBBackend.Search as a registry tool.
type KBSearchTool struct {
	backend KBBackend
	timeout time.Duration
}

// NewKBSearchTool builds a KBSearchTool around backend.
func NewKBSearchTool(backend KBBackend) *KBSearchTool {
	return &KBSearchTool{backend: backend}
}

func (t *KBSearchTool) Name() string        { return "kb_search" }
func (t *KBSearchTool) Description() string { return "Search the knowledge base for relevant articles." }
func (t *KBSearchTool) Permissions() []string { return []string{"kb:read"} }
func (t *KBSearchTool) Timeout() time.Duration { return t.timeout }

func (t *KBSearchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string", "minLength": 1},
			"max_results": map[string]any{"type": "integer", "minimum": 1, "maximum": 20, "default": 5},
			"filters":     map[string]any{"type": "object"},
		},
		"required": []any{"query"},
	}
}

func (t *KBSearchTool) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	var p kbSearchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode kb_search params: %w", err)
	}
	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxResults > 20 {
		maxResults = 20
	}

	articles, err := t.backend.Search(ctx, p.Query, p.Filters, maxResults)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].Relevance != articles[j].Relevance {
			return articles[i].Relevance > articles[j].Relevance
		}
		return articles[i].ID < articles[j].ID
	})
	if len(articles) > maxResults {
		articles = articles[:maxResults]
	}
	return map[string]any{"results": articles}, nil
}

// InMemoryKBBackend is a fake KBBackend for tests and local development. It
// returns every stored article that case-insensitively mentions the query
// term in its title or content, with their stored Relevance unchanged.
type InMemoryKBBackend struct {
	Articles []Article
}

func (b *InMemoryKBBackend) Search(ctx context.Context, query string, filters map[string]any, maxResults int) ([]Article, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Article, 0, len(b.Articles))
	for _, a := range b.Articles {
		if q == "" || strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Content), q) {
			out = append(out, a)
		}
	}
	return out, nil
}
