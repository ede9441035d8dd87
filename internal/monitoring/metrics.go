package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// latencyBuckets is the fixed histogram bucket set (seconds) shared by every
// latency metric.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10}

// Metrics is the process-global metric set. Every field is safe for
// concurrent use from multiple goroutines; the prometheus client types are
// themselves lock-guarded internally.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal          *prometheus.CounterVec
	RequestDuration        *prometheus.HistogramVec
	ToolExecutionsTotal    *prometheus.CounterVec
	LLMRequestsTotal       *prometheus.CounterVec
	LLMFallbacksTotal      prometheus.Counter
	RateLimitRejections    *prometheus.CounterVec
	ContentBlockedTotal    *prometheus.CounterVec
	WorkflowRollbacksTotal prometheus.Counter
	WorkflowStepsTotal     *prometheus.CounterVec
	ActiveSessions         prometheus.Gauge
	SummariesGenerated     prometheus.Counter
}

// NewMetrics builds and registers the fixed metric set against a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total pipeline requests handled, by component and outcome.",
		}, []string{"component", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request handling latency in seconds, by component.",
			Buckets: latencyBuckets,
		}, []string{"component"}),
		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Total tool invocations, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total LLM provider calls, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llm_fallbacks_total",
			Help: "Total times the LLM call layer fell back to the secondary provider.",
		}),
		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total requests rejected by the rate limiter, by scope.",
		}, []string{"scope"}),
		ContentBlockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_blocked_total",
			Help: "Total requests blocked by the content filter, by category.",
		}, []string{"category"}),
		WorkflowRollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_rollbacks_total",
			Help: "Total workflow executions that ended rolled-back.",
		}),
		WorkflowStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_steps_total",
			Help: "Total workflow step completions, by terminal status.",
		}, []string{"status"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of sessions currently tracked by the memory actor registry.",
		}),
		SummariesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "summaries_generated_total",
			Help: "Total conversation summaries generated (trim-driven or explicit).",
		}),
	}
	reg.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.ToolExecutionsTotal, m.LLMRequestsTotal,
		m.LLMFallbacksTotal, m.RateLimitRejections, m.ContentBlockedTotal,
		m.WorkflowRollbacksTotal, m.WorkflowStepsTotal, m.ActiveSessions, m.SummariesGenerated,
	)
	return m
}

// Handler returns the text-exposition HTTP handler served at /v1/metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather returns the current metric families, used by the alert evaluator
// to read the latest sample for a named metric without re-deriving it from
// the vec types directly.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}
