// Package transport runs the bidirectional JSON-frame WebSocket protocol
// clients use to hold a live conversation: connect, send chat turns, receive
// assistant replies and typing/error/system notices.
package transport

import "supportcore/internal/llm"

// Client frame types, keyed by the "type" field of an inbound frame.
const (
	FrameInit        = "init"
	FrameChatMessage = "chat_message"
	FrameVoiceInput  = "voice_input"
	FrameTyping      = "typing"
	FramePing        = "ping"
)

// Server frame types, keyed by the "type" field of an outbound frame.
const (
	FrameAIResponse         = "ai_response"
	FrameAITyping           = "ai_typing"
	FrameError              = "error"
	FrameSystemNotification = "system_notification"
	FramePong               = "pong"
)

// clientFrame is the union of every field any client frame type may carry.
// Only the fields relevant to Type are populated on a given frame; unused
// fields are left zero.
type clientFrame struct {
	Type          string          `json:"type"`
	Session       string          `json:"session"`
	Content       string          `json:"content,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Capabilities  []string        `json:"capabilities,omitempty"`
	AudioB64      string          `json:"audio_b64,omitempty"`
	Format        string          `json:"format,omitempty"`
	DurationMS    int             `json:"duration_ms,omitempty"`
	IsTyping      bool            `json:"is_typing,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	TimestampMS   int64           `json:"timestamp_ms,omitempty"`
}

// serverFrame is the union of every field any server frame type may carry.
type serverFrame struct {
	Type          string         `json:"type"`
	Session       string         `json:"session,omitempty"`
	Content       string         `json:"content,omitempty"`
	MessageID     string         `json:"message_id,omitempty"`
	ToolCalls     []llm.ToolCall `json:"tool_calls,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	IsTyping      bool           `json:"is_typing,omitempty"`
	Code          string         `json:"code,omitempty"`
	Message       string         `json:"message,omitempty"`
	RetryAfterMS  *int64         `json:"retry_after_ms,omitempty"`
	Level         string         `json:"level,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	TimestampMS   int64          `json:"timestamp_ms"`
}
