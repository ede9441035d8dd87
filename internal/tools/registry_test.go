package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type echoTool struct {
	name    string
	perms   []string
	timeout time.Duration
	delay   time.Duration
	panics  bool
	fails   bool
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes its input" }
func (t *echoTool) Permissions() []string { return t.perms }
func (t *echoTool) Timeout() time.Duration { return t.timeout }

func (t *echoTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": map[string]any{"type": "string"}},
		"required":   []any{"value"},
	}
}

func (t *echoTool) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.panics {
		panic("boom")
	}
	if t.fails {
		return nil, errors.New("tool body failed")
	}
	var params struct {
		Value string `json:"value"`
	}
	_ = json.Unmarshal(raw, &params)
	return map[string]any{"echo": params.Value}, nil
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), InvocationContext{}, "nope", nil)
	if result.Success || result.Error != "unknown tool" {
		t.Fatalf("expected unknown tool failure, got %+v", result)
	}
}

func TestRegistryExecuteValidatesParams(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := r.Execute(context.Background(), InvocationContext{}, "echo", json.RawMessage(`{}`))
	if result.Success {
		t.Fatalf("expected validation failure for missing required field, got %+v", result)
	}
}

func TestRegistryExecuteChecksPermissions(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "echo", perms: []string{"echo:write"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := r.Execute(context.Background(), InvocationContext{}, "echo", json.RawMessage(`{"value":"hi"}`))
	if result.Success || result.Error != "insufficient permissions" {
		t.Fatalf("expected insufficient permissions, got %+v", result)
	}

	invCtx := InvocationContext{Permissions: map[string]struct{}{"echo:write": {}}}
	result = r.Execute(context.Background(), invCtx, "echo", json.RawMessage(`{"value":"hi"}`))
	if !result.Success {
		t.Fatalf("expected success once permission granted, got %+v", result)
	}
}

func TestRegistryExecuteSucceeds(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := r.Execute(context.Background(), InvocationContext{}, "echo", json.RawMessage(`{"value":"hi"}`))
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	data, ok := result.Data.(map[string]any)
	if !ok || data["echo"] != "hi" {
		t.Fatalf("unexpected data: %+v", result.Data)
	}
}

func TestRegistryExecuteTimesOut(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "slow", timeout: 10 * time.Millisecond, delay: 100 * time.Millisecond}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := r.Execute(context.Background(), InvocationContext{}, "slow", json.RawMessage(`{"value":"hi"}`))
	if result.Success || result.Error != "ToolTimeout" {
		t.Fatalf("expected ToolTimeout, got %+v", result)
	}
}

func TestRegistryExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "panicky", panics: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := r.Execute(context.Background(), InvocationContext{}, "panicky", json.RawMessage(`{"value":"hi"}`))
	if result.Success {
		t.Fatalf("expected panic to be converted to failure")
	}
}

func TestRegistryExecuteConvertsToolError(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "failing", fails: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	result := r.Execute(context.Background(), InvocationContext{}, "failing", json.RawMessage(`{"value":"hi"}`))
	if result.Success || result.Error != "tool body failed" {
		t.Fatalf("expected tool body error surfaced, got %+v", result)
	}
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	schemas := r.Schemas()
	if len(schemas) != 1 || schemas[0].Name != "echo" {
		t.Fatalf("unexpected schemas: %+v", schemas)
	}
}
