package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"supportcore/internal/config"
	"supportcore/internal/llm"
	"supportcore/internal/observability"
)

// Client wraps the OpenAI SDK to implement llm.Provider.
type Client struct {
	sdk        sdk.Client
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a Client from the resolved OpenAI config section.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		sdk:        sdk.NewClient(opts...),
		model:      model,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	params := sdk.ChatCompletionNewParams{
		Model:            sdk.ChatModel(c.pickModel(model)),
		Messages:         AdaptMessages(msgs),
		Tools:            AdaptSchemas(tools),
		Temperature:      param.NewOpt(llm.Temperature),
		TopP:             param.NewOpt(llm.TopP),
		FrequencyPenalty: param.NewOpt(llm.FrequencyPenalty),
		PresencePenalty:  param.NewOpt(llm.PresencePenalty),
	}

	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", string(params.Model), len(tools), len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("openai_chat_error")
		return llm.Message{}, err
	}
	llm.LogRedactedResponse(ctx, resp)

	out := messageFromCompletion(resp)

	promptTokens := int(resp.Usage.PromptTokens)
	completionTokens := int(resp.Usage.CompletionTokens)
	llm.RecordTokenAttributes(span, promptTokens, completionTokens, promptTokens+completionTokens)
	llm.RecordTokenMetricsFromContext(ctx, string(params.Model), promptTokens, completionTokens)

	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).
		Int("prompt_tokens", promptTokens).Int("completion_tokens", completionTokens).
		Msg("openai_chat_ok")

	return out, nil
}

// ChatStream emits the full response as a single delta followed by any tool
// calls, matching the coarse framing internal/transport needs.
func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	msg, err := c.Chat(ctx, msgs, tools, model)
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	if msg.Content != "" {
		h.OnDelta(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		h.OnToolCall(tc)
	}
	return nil
}

func messageFromCompletion(resp *sdk.ChatCompletion) llm.Message {
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Message{Role: "assistant"}
	}
	choice := resp.Choices[0]
	out := llm.Message{Role: "assistant", Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			Name: tc.Function.Name,
			Args: []byte(tc.Function.Arguments),
			ID:   tc.ID,
		})
	}
	return out
}

// Tokenizer returns a ResponsesTokenizer for accurate preflight token counting.
func (c *Client) Tokenizer(cache *llm.TokenCache) llm.Tokenizer {
	return NewResponsesTokenizer(c, c.model, cache)
}

// SupportsTokenization reports whether the configured base URL looks like
// the hosted OpenAI API (self-hosted/compatible backends may not implement
// the input_tokens preflight endpoint).
func (c *Client) SupportsTokenization() bool {
	return c.baseURL == "" || strings.Contains(c.baseURL, "api.openai.com")
}
