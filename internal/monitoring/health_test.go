package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHealthCheckerClassifiesByLatency(t *testing.T) {
	checker := NewHealthChecker(30*time.Millisecond, 80*time.Millisecond)
	checker.Register("fast", func(ctx context.Context) error { return nil })
	checker.Register("slow", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	checker.Register("broken", func(ctx context.Context) error { return errors.New("connection refused") })

	report := checker.Check(context.Background())
	if report.Status != HealthUnhealthy {
		t.Fatalf("expected overall status unhealthy (worst component), got %s", report.Status)
	}

	byName := make(map[string]ComponentHealth, len(report.Components))
	for _, c := range report.Components {
		byName[c.Name] = c
	}
	if byName["fast"].Status != HealthHealthy {
		t.Fatalf("expected fast probe healthy, got %s", byName["fast"].Status)
	}
	if byName["slow"].Status != HealthDegraded {
		t.Fatalf("expected slow probe degraded, got %s", byName["slow"].Status)
	}
	if byName["broken"].Status != HealthUnhealthy {
		t.Fatalf("expected broken probe unhealthy, got %s", byName["broken"].Status)
	}
	if byName["broken"].Error == "" {
		t.Fatalf("expected broken probe to record its error")
	}
}

func TestHealthCheckerAllHealthyOverallHealthy(t *testing.T) {
	checker := NewHealthChecker(0, 0)
	checker.Register("a", func(ctx context.Context) error { return nil })
	checker.Register("b", func(ctx context.Context) error { return nil })

	report := checker.Check(context.Background())
	if report.Status != HealthHealthy {
		t.Fatalf("expected overall healthy, got %s", report.Status)
	}
}
