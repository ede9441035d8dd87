package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"supportcore/internal/config"
	"supportcore/internal/llm"
	"supportcore/internal/memory"
	"supportcore/internal/objectstore"
	"supportcore/internal/security"
	"supportcore/internal/tools"
)

// memKVStore is a minimal in-memory KVStore fake, matching the shape used
// across this codebase's other package tests.
type memKVStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKVStore() *memKVStore { return &memKVStore{data: make(map[string][]byte)} }

func (s *memKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, memory.ErrNotFoundInStore
	}
	return v, nil
}

func (s *memKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memKVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// memDedupe is a minimal Dedupe fake.
type memDedupe struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemDedupe() *memDedupe { return &memDedupe{data: make(map[string]string)} }

func (d *memDedupe) Get(ctx context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data[key], nil
}

func (d *memDedupe) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = value
	return nil
}

// stubProvider returns canned replies in sequence, one per Chat call, and
// records every call it received.
type stubProvider struct {
	mu      sync.Mutex
	replies []llm.Message
	calls   int
	err     error
}

func (p *stubProvider) Chat(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return llm.Message{}, p.err
	}
	idx := p.calls
	p.calls++
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	return p.replies[idx], nil
}

func (p *stubProvider) ChatStream(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return nil
}

// echoTool is a trivial Tool fake that reports the params it was given.
type echoTool struct{}

func (echoTool) Name() string           { return "echo" }
func (echoTool) Description() string    { return "echoes params back" }
func (echoTool) Permissions() []string  { return nil }
func (echoTool) Timeout() time.Duration { return time.Second }
func (echoTool) ParameterSchema() map[string]any {
	return map[string]any{"type": "object"}
}
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{"echoed": string(params)}, nil
}

func newTestPipeline(t *testing.T, provider llm.Provider, dedupe Dedupe) *Pipeline {
	t.Helper()
	gate := security.NewGate(config.RateLimitConfig{RequestsPerMinute: 1000, Burst: 1000}, 10000, nil)
	reg := tools.NewRegistry()
	if err := reg.Register(echoTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	mgr := memory.NewManager(config.MemoryConfig{}, newMemKVStore(), newMemKVStore(), objectstore.NewMemoryStore(), provider, "summary-model")

	return New(Config{
		Gate:              gate,
		Provider:          provider,
		Registry:          reg,
		Memory:            mgr,
		Model:             "test-model",
		SystemInstruction: "You are a support agent.",
		MaxTokens:         2000,
		Dedupe:            dedupe,
		DedupeTTL:         time.Minute,
	})
}

func TestHandleSimpleTurnAppendsUserAndAssistantMessages(t *testing.T) {
	provider := &stubProvider{replies: []llm.Message{{Role: "assistant", Content: "Your ticket has been noted"}}}
	p := newTestPipeline(t, provider, nil)

	resp, err := p.Handle(context.Background(), Request{SessionID: "s1", MessageID: "m1", Content: "I need help"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Content == "" {
		t.Fatalf("expected non-empty response content")
	}
	if resp.CorrelationID == "" {
		t.Fatalf("expected a correlation id to be allocated")
	}

	ctx, err := p.mem.GetContext(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(ctx.Messages) != 2 {
		t.Fatalf("expected 2 messages (user + assistant), got %d: %+v", len(ctx.Messages), ctx.Messages)
	}
	if ctx.Messages[0].Role != "user" || ctx.Messages[1].Role != "assistant" {
		t.Fatalf("expected user then assistant, got %+v", ctx.Messages)
	}
}

func TestHandleDispatchesToolCallsThenGetsFinalReply(t *testing.T) {
	provider := &stubProvider{replies: []llm.Message{
		{Role: "assistant", ToolCalls: []llm.ToolCall{{Name: "echo", Args: json.RawMessage(`{"q":"hi"}`), ID: "call-1"}}},
		{Role: "assistant", Content: "Here is what I found"},
	}}
	p := newTestPipeline(t, provider, nil)

	resp, err := p.Handle(context.Background(), Request{SessionID: "s2", MessageID: "m1", Content: "search something"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Content == "" {
		t.Fatalf("expected final shaped response content")
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 provider calls (tool round + final), got %d", provider.calls)
	}

	ctx, err := p.mem.GetContext(context.Background(), "s2")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	var sawTool bool
	for _, m := range ctx.Messages {
		if m.Role == "tool" {
			sawTool = true
		}
	}
	if !sawTool {
		t.Fatalf("expected a tool-result message appended to history, got %+v", ctx.Messages)
	}
}

func TestHandleReturnsCachedResponseOnDedupeHit(t *testing.T) {
	provider := &stubProvider{replies: []llm.Message{{Role: "assistant", Content: "first answer"}}}
	dedupe := newMemDedupe()
	p := newTestPipeline(t, provider, dedupe)

	req := Request{SessionID: "s3", MessageID: "dup-1", Content: "hello"}
	first, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	second, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle (retry): %v", err)
	}
	if second.Content != first.Content {
		t.Fatalf("expected cached response on retry, got %q vs %q", second.Content, first.Content)
	}
	if provider.calls != 1 {
		t.Fatalf("expected provider not to be called again on dedupe hit, got %d calls", provider.calls)
	}
}

func TestHandleRejectsOverlongMessageViaGate(t *testing.T) {
	gate := security.NewGate(config.RateLimitConfig{RequestsPerMinute: 1000, Burst: 1000}, 5, nil)
	provider := &stubProvider{replies: []llm.Message{{Role: "assistant", Content: "ok"}}}
	reg := tools.NewRegistry()
	mgr := memory.NewManager(config.MemoryConfig{}, newMemKVStore(), newMemKVStore(), objectstore.NewMemoryStore(), provider, "model")
	p := New(Config{Gate: gate, Provider: provider, Registry: reg, Memory: mgr, Model: "m"})

	_, err := p.Handle(context.Background(), Request{SessionID: "s4", MessageID: "m1", Content: "this message is far too long"})
	if err == nil {
		t.Fatalf("expected content-length rejection from the gate")
	}
}
