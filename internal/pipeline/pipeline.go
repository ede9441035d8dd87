// Package pipeline wires the security gate, LLM call layer, tool registry,
// and memory engine into the single per-message flow every inbound chat
// turn goes through.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"supportcore/internal/apperr"
	"supportcore/internal/llm"
	"supportcore/internal/memory"
	"supportcore/internal/monitoring"
	"supportcore/internal/security"
	"supportcore/internal/tools"
)

// Dedupe is the idempotency store a Pipeline uses to dedup retries by
// inbound message id, the same narrow shape the workflow orchestrator uses
// for per-step idempotency.
type Dedupe interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Request is one inbound chat turn.
type Request struct {
	SessionID   string
	MessageID   string
	Content     string
	Permissions map[string]struct{}
}

// Response is the final assistant turn produced for a Request.
type Response struct {
	CorrelationID string
	MessageID     string
	Content       string
	ToolCalls     []llm.ToolCall
	FallbackUsed  bool
	RateLimit     security.RateLimitResult
}

// Pipeline runs the security gate -> LLM call -> tool registry -> memory
// engine flow for each inbound message.
type Pipeline struct {
	gate     *security.Gate
	provider llm.Provider
	registry tools.Registry
	mem      *memory.Manager
	metrics  *monitoring.Metrics
	logger   *monitoring.Logger

	model             string
	systemInstruction string
	maxTokens         int

	dedupe    Dedupe
	dedupeTTL time.Duration
}

// Config bundles the construction-time dependencies and tunables for a
// Pipeline.
type Config struct {
	Gate              *security.Gate
	Provider          llm.Provider
	Registry          tools.Registry
	Memory            *memory.Manager
	Metrics           *monitoring.Metrics
	Logger            *monitoring.Logger
	Model             string
	SystemInstruction string
	MaxTokens         int
	Dedupe            Dedupe
	DedupeTTL         time.Duration
}

// New builds a Pipeline from cfg. cfg.Dedupe may be nil to disable the
// retry-dedup step entirely (used in tests exercising the flow in
// isolation).
func New(cfg Config) *Pipeline {
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Pipeline{
		gate:              cfg.Gate,
		provider:          cfg.Provider,
		registry:          cfg.Registry,
		mem:               cfg.Memory,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		model:             cfg.Model,
		systemInstruction: cfg.SystemInstruction,
		maxTokens:         cfg.MaxTokens,
		dedupe:            cfg.Dedupe,
		dedupeTTL:         ttl,
	}
}

func dedupeKey(messageID string) string { return "pipeline:msg:" + messageID }

// Handle runs req through the full pipeline, returning the assistant's
// final response. If req.MessageID has already produced a cached response
// (a retry of a message whose original attempt succeeded), that cached
// response is returned without reprocessing. A single downstream-retryable
// failure triggers one internal retry of the whole flow before the error
// is surfaced to the caller.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Response, error) {
	corrID := uuid.NewString()
	ctx, span := otel.Tracer("internal/pipeline").Start(ctx, "pipeline.Handle")
	defer span.End()
	ctx = withCorrelationID(ctx, corrID)

	if req.MessageID != "" && p.dedupe != nil {
		if cached, err := p.dedupe.Get(ctx, dedupeKey(req.MessageID)); err == nil && cached != "" {
			var resp Response
			if jerr := json.Unmarshal([]byte(cached), &resp); jerr == nil {
				p.logStage(ctx, req, "dedupe_hit", nil)
				return resp, nil
			}
		}
	}

	resp, err := p.doHandle(ctx, req, corrID)
	if err != nil && apperr.IsRetryable(err) {
		p.logStage(ctx, req, "retrying_after_transient_error", err)
		resp, err = p.doHandle(ctx, req, corrID)
	}
	if err != nil {
		p.logStage(ctx, req, "failed", err)
		return Response{}, err
	}

	if req.MessageID != "" && p.dedupe != nil {
		if encoded, jerr := json.Marshal(resp); jerr == nil {
			_ = p.dedupe.Set(ctx, dedupeKey(req.MessageID), string(encoded), p.dedupeTTL)
		}
	}
	return resp, nil
}

func (p *Pipeline) doHandle(ctx context.Context, req Request, corrID string) (Response, error) {
	outcome, err := p.gate.Check(ctx, req.SessionID, security.KindRequests, 1, req.Content)
	if err != nil {
		return Response{}, err
	}
	p.logStage(ctx, req, "gate_passed", nil)

	now := time.Now().UnixMilli()
	userMsg := memory.ChatMessage{ID: req.MessageID, Role: "user", Content: outcome.Text, TimestampMS: now}
	if _, err := p.mem.AddMessage(ctx, req.SessionID, userMsg); err != nil {
		return Response{}, err
	}
	p.logStage(ctx, req, "message_appended", nil)

	convCtx, err := p.mem.GetContext(ctx, req.SessionID)
	if err != nil {
		return Response{}, err
	}
	schemas := p.registry.Schemas()
	prompt := llm.AssemblePrompt(p.systemInstruction, convCtx.Summary, toLLMMessages(convCtx.Messages))
	budget := llm.OutputTokenBudget(p.maxTokens, prompt)
	p.logStageWithFields(ctx, req, "context_built", map[string]any{"output_token_budget": budget}, nil)

	reply, err := p.provider.Chat(ctx, prompt, schemas, p.model)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.UpstreamUnavailable, "llm call failed", err)
	}
	if p.metrics != nil {
		llmOutcome := "success"
		if fallbackUsed(reply) {
			llmOutcome = "fallback"
		}
		p.metrics.LLMRequestsTotal.WithLabelValues(p.model, llmOutcome).Inc()
	}
	p.logStage(ctx, req, "llm_responded", nil)

	if len(reply.ToolCalls) > 0 {
		assistantMsg := memory.ChatMessage{
			Role:        "assistant",
			Content:     reply.Content,
			ToolCalls:   reply.ToolCalls,
			TimestampMS: time.Now().UnixMilli(),
		}
		if _, err := p.mem.AddMessage(ctx, req.SessionID, assistantMsg); err != nil {
			return Response{}, err
		}

		invCtx := tools.InvocationContext{Permissions: req.Permissions}
		for _, tc := range reply.ToolCalls {
			result := p.registry.Execute(ctx, invCtx, tc.Name, tc.Args)
			if p.metrics != nil {
				toolOutcome := "success"
				if !result.Success {
					toolOutcome = "failure"
				}
				p.metrics.ToolExecutionsTotal.WithLabelValues(tc.Name, toolOutcome).Inc()
			}
			payload, _ := json.Marshal(result)
			toolMsg := memory.ChatMessage{
				Role:        "tool",
				Content:     string(payload),
				ToolID:      tc.ID,
				TimestampMS: time.Now().UnixMilli(),
			}
			if _, err := p.mem.AddMessage(ctx, req.SessionID, toolMsg); err != nil {
				return Response{}, err
			}
		}
		p.logStage(ctx, req, "tools_dispatched", nil)

		convCtx, err = p.mem.GetContext(ctx, req.SessionID)
		if err != nil {
			return Response{}, err
		}
		prompt = llm.AssemblePrompt(p.systemInstruction, convCtx.Summary, toLLMMessages(convCtx.Messages))
		reply, err = p.provider.Chat(ctx, prompt, nil, p.model)
		if err != nil {
			return Response{}, apperr.Wrap(apperr.UpstreamUnavailable, "llm follow-up call failed", err)
		}
	}

	shaped := llm.ShapeResponse(reply.Content)
	finalMsg := memory.ChatMessage{Role: "assistant", Content: shaped, TimestampMS: time.Now().UnixMilli()}
	if _, err := p.mem.AddMessage(ctx, req.SessionID, finalMsg); err != nil {
		return Response{}, err
	}
	p.logStage(ctx, req, "final_message_appended", nil)

	return Response{
		CorrelationID: corrID,
		MessageID:     req.MessageID,
		Content:       shaped,
		ToolCalls:     reply.ToolCalls,
		FallbackUsed:  fallbackUsed(reply),
		RateLimit:     outcome.RateLimit,
	}, nil
}

func fallbackUsed(msg llm.Message) bool {
	used, _ := msg.Metadata["fallback_used"].(bool)
	return used
}

func toLLMMessages(msgs []memory.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{
			Role:      m.Role,
			Content:   m.Content,
			ToolID:    m.ToolID,
			ToolCalls: m.ToolCalls,
		})
	}
	return out
}

func (p *Pipeline) logStage(ctx context.Context, req Request, stage string, err error) {
	p.logStageWithFields(ctx, req, stage, nil, err)
}

func (p *Pipeline) logStageWithFields(ctx context.Context, req Request, stage string, fields map[string]any, err error) {
	if p.logger == nil {
		return
	}
	level := monitoring.LevelInfo
	if err != nil {
		level = monitoring.LevelError
	}
	p.logger.Log(ctx, level, req.MessageID, req.SessionID, "", stage, fields, err, nil)
}
