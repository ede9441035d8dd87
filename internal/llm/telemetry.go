package llm

import (
	"context"
	"sync"

	"supportcore/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter
)

func ensureTokenInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("internal/llm")
		promptCounter, _ = m.Int64Counter("llm.prompt_tokens", otelmetric.WithDescription("Cumulative prompt tokens by model"))
		completionCounter, _ = m.Int64Counter("llm.completion_tokens", otelmetric.WithDescription("Cumulative completion tokens by model"))
	})
}

// RecordTokenMetricsFromContext records prompt/completion token usage against
// the given model, tagging the OTel counters by model name.
func RecordTokenMetricsFromContext(ctx context.Context, model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureTokenInstruments()
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), otelmetric.WithAttributes(attribute.String("llm.model", model)))
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), otelmetric.WithAttributes(attribute.String("llm.model", model)))
	}
}

// StartRequestSpan starts a tracing span for an outbound provider request and
// returns the derived context alongside the span.
func StartRequestSpan(ctx context.Context, name, model string, toolCount, msgCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer("internal/llm")
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.tools", toolCount),
		attribute.Int("llm.messages", msgCount),
	)
	return ctx, span
}

// RecordTokenAttributes stamps prompt/completion/total token counts onto a span.
func RecordTokenAttributes(span trace.Span, prompt, completion, total int) {
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", prompt),
		attribute.Int("llm.completion_tokens", completion),
		attribute.Int("llm.total_tokens", total),
	)
}

// LogRedactedPrompt logs an outbound request at debug level. Only the
// message count is logged; message content is never written to the log.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	log := observability.LoggerWithTrace(ctx)
	log.Debug().Int("messages", len(msgs)).Msg("llm_request")
}

// LogRedactedResponse logs an inbound provider response at debug level.
func LogRedactedResponse(ctx context.Context, resp any) {
	log := observability.LoggerWithTrace(ctx)
	log.Debug().Msg("llm_response")
}
