package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"supportcore/internal/observability"
)

// ErrorLogStore is the warm-kv surface error-level entries are persisted to,
// under key "log:error:<timestamp>:<request_id>" with a 7-day retention.
type ErrorLogStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const errorLogTTL = 7 * 24 * time.Hour

func errorLogKey(ts time.Time, requestID string) string {
	return fmt.Sprintf("log:error:%s:%s", ts.UTC().Format(time.RFC3339Nano), requestID)
}

// Logger emits structured log entries and persists error-level ones to
// Redis so they survive past the process's own log retention.
type Logger struct {
	store     ErrorLogStore
	component string
}

// NewLogger builds a Logger for the given component name. store may be nil
// to disable error persistence (e.g. in tests).
func NewLogger(component string, store ErrorLogStore) *Logger {
	return &Logger{store: store, component: component}
}

// Log emits one structured entry. err and latency are optional; requestID/
// sessionID/userID are taken from ctx-adjacent fields the caller already
// has in scope (the pipeline layer threads these through explicitly rather
// than via context values, keeping this package dependency-free).
func (l *Logger) Log(ctx context.Context, level Level, requestID, sessionID, userID, message string, metadata map[string]any, err error, latency *time.Duration) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		RequestID: requestID,
		SessionID: sessionID,
		UserID:    userID,
		Message:   message,
		Metadata:  metadata,
	}
	if latency != nil {
		ms := latency.Milliseconds()
		entry.LatencyMS = &ms
	}
	if err != nil {
		entry.Error = &ErrorDetail{Name: fmt.Sprintf("%T", err), Message: err.Error()}
	}

	zl := observability.LoggerWithTrace(ctx)
	ev := l.zerologEvent(zl, level).
		Str("component", l.component).
		Str("request_id", requestID)
	if sessionID != "" {
		ev = ev.Str("session_id", sessionID)
	}
	if userID != "" {
		ev = ev.Str("user_id", userID)
	}
	if metadata != nil {
		ev = ev.Interface("metadata", metadata)
	}
	if entry.LatencyMS != nil {
		ev = ev.Int64("latency_ms", *entry.LatencyMS)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(message)

	if level == LevelError && l.store != nil {
		l.persist(ctx, entry)
	}
}

func (l *Logger) zerologEvent(zl *zerolog.Logger, level Level) *zerolog.Event {
	switch level {
	case LevelDebug:
		return zl.Debug()
	case LevelWarn:
		return zl.Warn()
	case LevelError:
		return zl.Error()
	default:
		return zl.Info()
	}
}

func (l *Logger) persist(ctx context.Context, entry LogEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("monitoring_log_marshal_failed")
		return
	}
	key := errorLogKey(entry.Timestamp, entry.RequestID)
	if err := l.store.Set(ctx, key, raw, errorLogTTL); err != nil {
		log.Error().Err(err).Str("key", key).Msg("monitoring_error_log_persist_failed")
	}
}
