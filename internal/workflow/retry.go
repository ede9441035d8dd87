package workflow

import (
	"math/rand"
	"time"
)

// delayFor computes delay(attempt) for the retry policy's strategy.
// attempt is 1-based (the delay before the attempt-th retry).
func delayFor(policy RetryPolicy, attempt int) time.Duration {
	policy = policy.orDefaults()
	var d time.Duration
	switch policy.Strategy {
	case StrategyLinear:
		d = policy.BaseDelay * time.Duration(attempt)
	case StrategyExponential:
		d = policy.BaseDelay * time.Duration(uint64(1)<<uint(attempt-1))
		jitter := time.Duration(rand.Int63n(int64(policy.BaseDelay)))
		d += jitter
	default: // fixed
		d = policy.BaseDelay
	}
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	return d
}
