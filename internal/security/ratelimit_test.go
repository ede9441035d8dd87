package security

import (
	"context"
	"testing"

	"supportcore/internal/config"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		RequestsPerMinute: 3,
		TokensPerHour:     1000,
		WSMessagesPerMin:  5,
		VoiceInputPerMin:  2,
		Burst:             0,
	}
}

func TestRateLimiterLocalAdmitsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimitConfig(), nil)
	for i := 0; i < 3; i++ {
		res, err := rl.Check(context.Background(), "sess-1", KindRequests, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d to be admitted", i)
		}
	}
}

func TestRateLimiterLocalRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimitConfig(), nil)
	for i := 0; i < 3; i++ {
		if _, err := rl.Check(context.Background(), "sess-2", KindRequests, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	res, err := rl.Check(context.Background(), "sess-2", KindRequests, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected 4th request to be rejected")
	}
}

func TestRateLimiterTracksKindsIndependently(t *testing.T) {
	rl := NewRateLimiter(testRateLimitConfig(), nil)
	for i := 0; i < 3; i++ {
		if _, err := rl.Check(context.Background(), "sess-3", KindRequests, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	res, err := rl.Check(context.Background(), "sess-3", KindWebSocket, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected websocket kind to be unaffected by exhausted requests kind")
	}
}

func TestRateLimiterUnknownKindErrors(t *testing.T) {
	rl := NewRateLimiter(testRateLimitConfig(), nil)
	if _, err := rl.Check(context.Background(), "sess-4", Kind("bogus"), 1); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
