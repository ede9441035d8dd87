package security

import (
	"context"

	"github.com/redis/go-redis/v9"

	"supportcore/internal/apperr"
	"supportcore/internal/config"
)

// Gate runs the ordered checks inbound messages must pass: rate limit, PII
// redaction, content filter, input sanitization. It is the single entry
// point the request pipeline calls before a message reaches the LLM call
// layer or the tool registry.
type Gate struct {
	limiter *RateLimiter
	filter  *ContentFilter
}

// NewGate builds a Gate from configuration. rdb may be nil to run the rate
// limiter purely in-process.
func NewGate(cfg config.RateLimitConfig, maxContentLength int, rdb *redis.Client) *Gate {
	return &Gate{
		limiter: NewRateLimiter(cfg, rdb),
		filter:  NewContentFilter(maxContentLength),
	}
}

// Outcome is the result of running a message through the gate: the
// redacted-and-sanitized text to carry forward, plus rate-limit bookkeeping
// the caller may surface in response headers.
type Outcome struct {
	Text      string
	RateLimit RateLimitResult
}

// Check runs, in order: rate limit (by session and kind), PII redaction,
// content filtering, then input sanitization. It short-circuits on the
// first failure, returning a typed *apperr.Error.
func (g *Gate) Check(ctx context.Context, session string, kind Kind, cost int, text string) (Outcome, error) {
	rl, err := g.limiter.Check(ctx, session, kind, cost)
	if err != nil {
		return Outcome{}, err
	}
	if !rl.Allowed {
		return Outcome{RateLimit: rl}, apperr.New(apperr.RateLimited, "rate limit exceeded").
			WithDetails(map[string]any{
				"retry_after_ms": rl.RetryAfterMS,
				"limit":          rl.Limit,
				"remaining":      rl.Remaining,
				"reset_unix":     rl.ResetUnix,
				"scope":          string(kind),
			})
	}

	redacted := RedactPII(text)

	if err := g.filter.Check(redacted); err != nil {
		return Outcome{RateLimit: rl}, err
	}

	sanitized := Sanitize(redacted)
	return Outcome{Text: sanitized, RateLimit: rl}, nil
}
