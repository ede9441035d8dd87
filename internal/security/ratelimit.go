package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"supportcore/internal/apperr"
	"supportcore/internal/config"
	"supportcore/internal/observability"
)

// Kind enumerates the rate-limit buckets checked per session.
type Kind string

const (
	KindRequests   Kind = "requests"
	KindTokens     Kind = "tokens"
	KindWebSocket  Kind = "websocket-msg"
	KindVoiceInput Kind = "voice-input"
)

// limitWindow pairs a window's duration with its admitted count and burst
// allowance above that count.
type limitWindow struct {
	limit  int
	window time.Duration
	burst  int
}

// RateLimitResult is returned by Check.
type RateLimitResult struct {
	Allowed      bool
	RetryAfterMS int64
	Limit        int
	Remaining    int
	ResetUnix    int64
}

// RateLimiter enforces limits keyed by (session, kind). With a Redis client
// each key is a fixed-window counter: the window starts at the first
// increment and the count resets when the key expires one window later; it
// is not a sliding window. Redis keeps limits across process restart and
// consistent across replicas; a storage failure fails open (the request is
// admitted) and is logged at warn.
type RateLimiter struct {
	rdb     *redis.Client
	windows map[Kind]limitWindow

	// local is a fallback in-process limiter used only when Redis is
	// unavailable (nil client), e.g. in unit tests that do not stand up a
	// Redis instance.
	mu    sync.Mutex
	local map[string]*tokenBucket
}

// NewRateLimiter builds a RateLimiter from configuration. rdb may be nil, in
// which case the limiter operates purely in-process (used for tests and the
// local dev profile).
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *RateLimiter {
	return &RateLimiter{
		rdb: rdb,
		windows: map[Kind]limitWindow{
			KindRequests:   {limit: cfg.RequestsPerMinute, window: time.Minute, burst: cfg.Burst},
			KindTokens:     {limit: cfg.TokensPerHour, window: time.Hour, burst: cfg.Burst},
			KindWebSocket:  {limit: cfg.WSMessagesPerMin, window: time.Minute, burst: cfg.Burst},
			KindVoiceInput: {limit: cfg.VoiceInputPerMin, window: time.Minute, burst: cfg.Burst},
		},
		local: make(map[string]*tokenBucket),
	}
}

// Check increments the (session, kind) counter by cost and reports whether
// the request is admitted.
func (r *RateLimiter) Check(ctx context.Context, session string, kind Kind, cost int) (RateLimitResult, error) {
	w, ok := r.windows[kind]
	if !ok {
		return RateLimitResult{}, apperr.New(apperr.Internal, fmt.Sprintf("unknown rate limit kind %q", kind))
	}
	effectiveLimit := w.limit + w.burst

	if r.rdb == nil {
		return r.checkLocal(session, kind, w, effectiveLimit, cost), nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", session, kind)
	count, err := r.rdb.IncrBy(ctx, key, int64(cost)).Result()
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("session", session).Str("kind", string(kind)).
			Msg("rate_limit_storage_failure_fail_open")
		return RateLimitResult{Allowed: true, Limit: effectiveLimit}, nil
	}
	if count == int64(cost) {
		// First increment in this window: set the expiry.
		_ = r.rdb.Expire(ctx, key, w.window).Err()
	}
	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = w.window
	}
	reset := time.Now().Add(ttl).Unix()

	if count > int64(effectiveLimit) {
		return RateLimitResult{
			Allowed:      false,
			RetryAfterMS: ttl.Milliseconds(),
			Limit:        effectiveLimit,
			Remaining:    0,
			ResetUnix:    reset,
		}, nil
	}
	return RateLimitResult{
		Allowed:   true,
		Limit:     effectiveLimit,
		Remaining: int(int64(effectiveLimit) - count),
		ResetUnix: reset,
	}, nil
}

func (r *RateLimiter) checkLocal(session string, kind Kind, w limitWindow, effectiveLimit, cost int) RateLimitResult {
	r.mu.Lock()
	key := session + ":" + string(kind)
	tb, ok := r.local[key]
	if !ok {
		refillRate := w.window / time.Duration(maxInt(w.limit, 1))
		tb = newTokenBucket(effectiveLimit, refillRate)
		r.local[key] = tb
	}
	r.mu.Unlock()

	if tb.takeTokens(cost) {
		return RateLimitResult{Allowed: true, Limit: effectiveLimit}
	}
	return RateLimitResult{Allowed: false, RetryAfterMS: tb.refillRate.Milliseconds(), Limit: effectiveLimit}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// tokenBucket is a simple local token-bucket limiter.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillAt   time.Time
	refillRate time.Duration
}

func newTokenBucket(capacity int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{capacity: capacity, tokens: capacity, refillAt: time.Now(), refillRate: refillRate}
}

func (tb *tokenBucket) takeTokens(n int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if tb.refillRate > 0 && now.After(tb.refillAt) {
		elapsed := now.Sub(tb.refillAt)
		toAdd := int(elapsed / tb.refillRate)
		if toAdd > 0 {
			tb.tokens = minInt(tb.capacity, tb.tokens+toAdd)
			tb.refillAt = tb.refillAt.Add(time.Duration(toAdd) * tb.refillRate)
		}
	}

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
