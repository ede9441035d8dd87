package llm

import (
	"context"
	"encoding/json"
)

// ToolCall represents a model-requested invocation of a registered tool.
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
	ID   string          `json:"id"`
}

// Message is a single turn in a conversation passed to a Provider. Role is
// one of "system", "user", "assistant", or "tool".
type Message struct {
	Role    string
	Content string
	ToolID  string
	// ToolCalls is only set on assistant messages that invoked a tool.
	ToolCalls []ToolCall
	// Metadata carries response-shaping annotations such as "fallback_used"
	// that are not part of the conversation itself.
	Metadata map[string]any
}

// ToolSchema describes a tool's name, purpose, and JSON-schema parameters so
// it can be advertised to a model's function-calling interface.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamHandler receives incremental output from ChatStream.
type StreamHandler interface {
	OnDelta(content string)
	OnToolCall(tc ToolCall)
}

// Provider is implemented by every supported LLM backend (Anthropic, OpenAI,
// Google). Chat returns the complete response; ChatStream delivers it
// incrementally through h and returns only an error, not the accumulated
// Message.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error)
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error
}
