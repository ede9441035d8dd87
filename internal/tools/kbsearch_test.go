package tools

import (
	"context"
	"encoding/json"
	"testing"
)

func TestKBSearchToolOrdersByRelevanceThenID(t *testing.T) {
	backend := &InMemoryKBBackend{Articles: []Article{
		{ID: "b", Title: "Resetting your password", Relevance: 0.8},
		{ID: "a", Title: "Resetting your password again", Relevance: 0.8},
		{ID: "c", Title: "Resetting your password once more", Relevance: 0.9},
	}}
	tool := NewKBSearchTool(backend)

	raw, _ := json.Marshal(map[string]any{"query": "password"})
	out, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	articles := result["results"].([]Article)
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	if articles[0].ID != "c" {
		t.Fatalf("expected highest-relevance article first, got %s", articles[0].ID)
	}
	if articles[1].ID != "a" || articles[2].ID != "b" {
		t.Fatalf("expected tie broken by ascending id, got order %s,%s", articles[1].ID, articles[2].ID)
	}
}

func TestKBSearchToolCapsMaxResults(t *testing.T) {
	articles := make([]Article, 25)
	for i := range articles {
		articles[i] = Article{ID: string(rune('a' + i)), Title: "doc", Relevance: float64(i)}
	}
	tool := NewKBSearchTool(&InMemoryKBBackend{Articles: articles})

	raw, _ := json.Marshal(map[string]any{"query": "doc", "max_results": 50})
	out, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)["results"].([]Article)
	if len(result) != 20 {
		t.Fatalf("expected results capped at 20, got %d", len(result))
	}
}

func TestKBSearchToolDefaultsMaxResults(t *testing.T) {
	articles := make([]Article, 10)
	for i := range articles {
		articles[i] = Article{ID: string(rune('a' + i)), Title: "doc", Relevance: float64(i)}
	}
	tool := NewKBSearchTool(&InMemoryKBBackend{Articles: articles})

	raw, _ := json.Marshal(map[string]any{"query": "doc"})
	out, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)["results"].([]Article)
	if len(result) != 5 {
		t.Fatalf("expected default 5 results, got %d", len(result))
	}
}

func TestInMemoryKBBackendFiltersByQuery(t *testing.T) {
	backend := &InMemoryKBBackend{Articles: []Article{
		{ID: "1", Title: "Billing FAQ"},
		{ID: "2", Title: "Password reset"},
	}}
	results, err := backend.Search(context.Background(), "billing", nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "1" {
		t.Fatalf("expected only billing article, got %+v", results)
	}
}
