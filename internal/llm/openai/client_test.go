package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supportcore/internal/config"
	"supportcore/internal/llm"
)

func TestChatReturnsText(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello","tool_calls":[]}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}
	cli := New(c, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := cli.Chat(ctx, []llm.Message{{Role: "user", Content: "hi"}}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("expected hello, got %q", msg.Content)
	}
}

func TestChatToolCall(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"x\":1}"}}]}}],"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`))
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	cli := New(config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "m"}, srv.Client())
	msg, err := cli.Chat(context.Background(), []llm.Message{{Role: "user", Content: "go"}}, []llm.ToolSchema{
		{Name: "lookup", Parameters: map[string]any{"type": "object"}},
	}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "lookup" {
		t.Fatalf("expected tool call, got %+v", msg.ToolCalls)
	}
}

func TestChatStreamEmitsDelta(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"streamed"}}],"usage":{}}`))
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	cli := New(config.OpenAIConfig{APIKey: "test", BaseURL: srv.URL}, srv.Client())
	rec := &recorder{}
	if err := cli.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, "", rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.deltas) != 1 || rec.deltas[0] != "streamed" {
		t.Fatalf("unexpected deltas: %+v", rec.deltas)
	}
}

type recorder struct {
	deltas []string
	calls  []llm.ToolCall
}

func (r *recorder) OnDelta(content string)     { r.deltas = append(r.deltas, content) }
func (r *recorder) OnToolCall(tc llm.ToolCall) { r.calls = append(r.calls, tc) }

func TestSupportsTokenization(t *testing.T) {
	hosted := New(config.OpenAIConfig{APIKey: "k"}, http.DefaultClient)
	if !hosted.SupportsTokenization() {
		t.Fatalf("expected hosted client to support tokenization")
	}
	selfHosted := New(config.OpenAIConfig{APIKey: "k", BaseURL: "http://localhost:8080/v1"}, http.DefaultClient)
	if selfHosted.SupportsTokenization() {
		t.Fatalf("expected self-hosted client to not claim tokenization support")
	}
}
