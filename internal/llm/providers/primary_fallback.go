package providers

import (
	"context"
	"time"

	"supportcore/internal/llm"
)

// PrimaryFallback wraps two llm.Provider values. Chat/ChatStream retry the
// primary up to primaryAttempts times with exponential backoff and jitter,
// then switch to the fallback provider for up to fallbackAttempts tries,
// stamping response metadata so callers know a fallback was used.
type PrimaryFallback struct {
	primary          llm.Provider
	fallback         llm.Provider
	primaryAttempts  int
	fallbackAttempts int
	baseDelay        time.Duration
	maxDelay         time.Duration
}

// NewPrimaryFallback builds a PrimaryFallback provider. primaryAttempts and
// fallbackAttempts must each be at least 1.
func NewPrimaryFallback(primary, fallback llm.Provider, primaryAttempts, fallbackAttempts int) *PrimaryFallback {
	if primaryAttempts < 1 {
		primaryAttempts = 1
	}
	if fallbackAttempts < 1 {
		fallbackAttempts = 1
	}
	return &PrimaryFallback{
		primary:          primary,
		fallback:         fallback,
		primaryAttempts:  primaryAttempts,
		fallbackAttempts: fallbackAttempts,
		baseDelay:        500 * time.Millisecond,
		maxDelay:         10 * time.Second,
	}
}

func (p *PrimaryFallback) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	msg, err := callWithRetry(ctx, p.primaryAttempts, p.baseDelay, p.maxDelay, func() (llm.Message, error) {
		return p.primary.Chat(ctx, msgs, tools, model)
	})
	if err == nil {
		return msg, nil
	}

	msg, err = callWithRetry(ctx, p.fallbackAttempts, p.baseDelay, p.maxDelay, func() (llm.Message, error) {
		return p.fallback.Chat(ctx, msgs, tools, model)
	})
	if err != nil {
		return llm.Message{}, err
	}
	stampFallbackUsed(&msg)
	return msg, nil
}

func (p *PrimaryFallback) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	rec := &bufferedStreamHandler{}
	_, err := callWithRetry(ctx, p.primaryAttempts, p.baseDelay, p.maxDelay, func() (llm.Message, error) {
		rec.reset()
		return llm.Message{}, p.primary.ChatStream(ctx, msgs, tools, model, rec)
	})
	if err == nil {
		rec.replay(h)
		return nil
	}

	rec.reset()
	_, err = callWithRetry(ctx, p.fallbackAttempts, p.baseDelay, p.maxDelay, func() (llm.Message, error) {
		rec.reset()
		return llm.Message{}, p.fallback.ChatStream(ctx, msgs, tools, model, rec)
	})
	if err != nil {
		return err
	}
	rec.replay(h)
	return nil
}

func stampFallbackUsed(msg *llm.Message) {
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata["fallback_used"] = true
}

// callWithRetry runs fn up to attempts times, backing off exponentially with
// jitter between tries. The context deadline is honored between attempts.
func callWithRetry(ctx context.Context, attempts int, baseDelay, maxDelay time.Duration, fn func() (llm.Message, error)) (llm.Message, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		msg, err := fn()
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		delay := baseDelay * (1 << attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(float64(delay) * 0.3 * (0.5 + jitterFraction()))
		delay += jitter

		select {
		case <-ctx.Done():
			return llm.Message{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return llm.Message{}, lastErr
}

func jitterFraction() float64 {
	return float64(time.Now().UnixNano()%1000) / 1000.0
}

// bufferedStreamHandler records deltas/tool calls from one ChatStream
// attempt so a failed attempt's partial output is never replayed to the
// caller; only a fully successful attempt's output is forwarded.
type bufferedStreamHandler struct {
	deltas []string
	calls  []llm.ToolCall
}

func (b *bufferedStreamHandler) reset() {
	b.deltas = nil
	b.calls = nil
}

func (b *bufferedStreamHandler) OnDelta(content string) {
	b.deltas = append(b.deltas, content)
}

func (b *bufferedStreamHandler) OnToolCall(tc llm.ToolCall) {
	b.calls = append(b.calls, tc)
}

func (b *bufferedStreamHandler) replay(h llm.StreamHandler) {
	if h == nil {
		return
	}
	for _, d := range b.deltas {
		h.OnDelta(d)
	}
	for _, tc := range b.calls {
		h.OnToolCall(tc)
	}
}
