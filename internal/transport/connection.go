package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"supportcore/internal/monitoring"
	"supportcore/internal/pipeline"
)

const (
	maxPayloadBytes = 1 << 20
	pongWait        = 60 * time.Second
	pingInterval    = 30 * time.Second
	writeWait       = 10 * time.Second
)

// Handler is the subset of *pipeline.Pipeline a connection needs, narrowed
// to an interface so tests can dispatch frames without standing up the full
// provider/memory/security stack.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// connection owns one upgraded WebSocket and pumps frames to and from it
// until either side closes or the read loop errors out.
type connection struct {
	conn    *websocket.Conn
	handler Handler
	logger  *monitoring.Logger

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte

	initialized bool
	permissions map[string]struct{}
}

func newConnection(parent context.Context, conn *websocket.Conn, handler Handler, logger *monitoring.Logger) *connection {
	ctx, cancel := context.WithCancel(parent)
	return &connection{
		conn:    conn,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, 32),
	}
}

func (c *connection) run() {
	defer c.close()
	go c.writePump()
	c.readPump()
}

func (c *connection) close() {
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
}

func (c *connection) readPump() {
	c.conn.SetReadLimit(maxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("", "INVALID_REQUEST_FORMAT", err.Error(), nil)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) dispatch(frame clientFrame) {
	if !c.initialized && frame.Type != FrameInit {
		c.sendError(frame.Session, "INVALID_REQUEST_FORMAT", "first frame on a connection must be init", nil)
		return
	}

	switch frame.Type {
	case FrameInit:
		c.handleInit(frame)
	case FrameChatMessage:
		c.handleChatMessage(frame)
	case FrameVoiceInput:
		c.handleVoiceInput(frame)
	case FrameTyping:
		// Typing notices from the client are transient UI state; nothing to
		// acknowledge or persist.
	case FramePing:
		c.sendFrame(serverFrame{Type: FramePong, TimestampMS: nowMillis()})
	default:
		c.sendError(frame.Session, "INVALID_REQUEST_FORMAT", "unrecognized frame type: "+frame.Type, nil)
	}
}

func (c *connection) handleInit(frame clientFrame) {
	c.initialized = true
	c.permissions = make(map[string]struct{}, len(frame.Capabilities))
	for _, cap := range frame.Capabilities {
		c.permissions[cap] = struct{}{}
	}
	c.log("connection_initialized", frame.Session, nil, nil)
}

func (c *connection) handleChatMessage(frame clientFrame) {
	if !c.requireSession(frame) {
		return
	}
	c.sendFrame(serverFrame{Type: FrameAITyping, Session: frame.Session, IsTyping: true, TimestampMS: nowMillis()})

	req := pipeline.Request{
		SessionID:   frame.Session,
		MessageID:   uuid.NewString(),
		Content:     frame.Content,
		Permissions: c.permissions,
	}
	resp, err := c.handler.Handle(c.ctx, req)

	c.sendFrame(serverFrame{Type: FrameAITyping, Session: frame.Session, IsTyping: false, TimestampMS: nowMillis()})

	if err != nil {
		c.log("chat_message_failed", frame.Session, map[string]any{"message_id": req.MessageID}, err)
		c.sendErrorForOutcome(frame.Session, err)
		return
	}
	c.sendFrame(serverFrame{
		Type:          FrameAIResponse,
		Session:       frame.Session,
		Content:       resp.Content,
		MessageID:     resp.MessageID,
		ToolCalls:     resp.ToolCalls,
		Metadata:      map[string]any{"fallback_used": resp.FallbackUsed},
		CorrelationID: resp.CorrelationID,
		TimestampMS:   nowMillis(),
	})
}

func (c *connection) handleVoiceInput(frame clientFrame) {
	// Voice transcription is outside this surface's scope; voice_input
	// frames are accepted but acknowledged with a system notice rather than
	// routed through the chat pipeline.
	if !c.requireSession(frame) {
		return
	}
	c.sendFrame(serverFrame{
		Type:        FrameSystemNotification,
		Level:       "info",
		Message:     "voice input received; transcription is not available on this channel",
		TimestampMS: nowMillis(),
	})
}

func (c *connection) requireSession(frame clientFrame) bool {
	if frame.Session != "" {
		return true
	}
	c.sendError("", "MISSING_REQUIRED_FIELD", "frame is missing a session id", nil)
	return false
}

func (c *connection) sendErrorForOutcome(session string, err error) {
	code, retryAfter := classifyError(err)
	c.sendError(session, code, err.Error(), retryAfter)
}

func (c *connection) sendError(session, code, message string, retryAfterMS *int64) {
	c.sendFrame(serverFrame{
		Type:         FrameError,
		Session:      session,
		Code:         code,
		Message:      message,
		RetryAfterMS: retryAfterMS,
		TimestampMS:  nowMillis(),
	})
}

func (c *connection) sendFrame(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	default:
		// Slow consumer; drop rather than block the read loop indefinitely.
	}
}

func (c *connection) log(stage, sessionID string, fields map[string]any, err error) {
	if c.logger == nil {
		return
	}
	level := monitoring.LevelInfo
	if err != nil {
		level = monitoring.LevelError
	}
	c.logger.Log(c.ctx, level, "", sessionID, "", stage, fields, err, nil)
}

func nowMillis() int64 { return time.Now().UnixMilli() }
