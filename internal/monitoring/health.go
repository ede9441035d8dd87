package monitoring

import (
	"context"
	"time"
)

// Prober checks one collaborator's reachability. Implementations wrap the
// concrete interface each component already exposes (llm.Provider, the warm
// KVStore, the cold ObjectStore, the memory actor registry) behind this
// single narrow shape so HealthChecker stays independent of their concrete
// types.
type Prober func(ctx context.Context) error

// HealthChecker probes each registered collaborator and classifies its
// status by latency against the T1/T2 thresholds (default T1=1s, T2=3s):
// healthy below T1, degraded in [T1, T2), unhealthy at or above T2 or on
// error.
type HealthChecker struct {
	probes  map[string]Prober
	t1, t2  time.Duration
	timeout time.Duration
}

// NewHealthChecker builds a HealthChecker. A zero t1/t2 defaults to 1s/3s.
func NewHealthChecker(t1, t2 time.Duration) *HealthChecker {
	if t1 <= 0 {
		t1 = time.Second
	}
	if t2 <= 0 {
		t2 = 3 * time.Second
	}
	return &HealthChecker{probes: make(map[string]Prober), t1: t1, t2: t2, timeout: t2 + time.Second}
}

// Register adds a named collaborator probe.
func (h *HealthChecker) Register(name string, probe Prober) {
	h.probes[name] = probe
}

// Check runs every registered probe with a bounded timeout and returns the
// aggregated report; overall status is the worst component's status.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: HealthHealthy, CheckedAt: time.Now()}
	for name, probe := range h.probes {
		report.Components = append(report.Components, h.probeOne(ctx, name, probe))
	}
	for _, c := range report.Components {
		report.Status = worseStatus(report.Status, c.Status)
	}
	return report
}

func (h *HealthChecker) probeOne(ctx context.Context, name string, probe Prober) ComponentHealth {
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)
	latency := time.Since(start)

	ch := ComponentHealth{Name: name, LatencyMS: latency.Milliseconds()}
	switch {
	case err != nil || latency >= h.t2:
		ch.Status = HealthUnhealthy
		if err != nil {
			ch.Error = err.Error()
		}
	case latency >= h.t1:
		ch.Status = HealthDegraded
	default:
		ch.Status = HealthHealthy
	}
	return ch
}
