// Package providers selects and constructs llm.Provider implementations
// from configuration, wrapping the chosen primary/fallback pair in
// PrimaryFallback.
package providers

import (
	"fmt"
	"net/http"
	"strings"

	"supportcore/internal/config"
	"supportcore/internal/llm"
	"supportcore/internal/llm/anthropic"
	"supportcore/internal/llm/google"
	openaillm "supportcore/internal/llm/openai"
)

// build constructs a single vendor provider by name.
func build(name string, cfg config.LLMClientConfig, httpClient *http.Client) (llm.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "google":
		return google.New(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}
}

// Build constructs the configured llm.Provider. When a fallback provider is
// configured it returns a PrimaryFallback wrapping both; otherwise it
// returns the primary provider directly.
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	primary, err := build(cfg.LLMClient.Provider, cfg.LLMClient, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build primary provider: %w", err)
	}

	if strings.TrimSpace(cfg.LLMClient.FallbackProvider) == "" {
		return primary, nil
	}

	fallback, err := build(cfg.LLMClient.FallbackProvider, cfg.LLMClient, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build fallback provider: %w", err)
	}

	primaryAttempts := cfg.LLMClient.PrimaryMaxAttempts
	if primaryAttempts <= 0 {
		primaryAttempts = 2
	}
	fallbackAttempts := cfg.LLMClient.FallbackMaxAttempts
	if fallbackAttempts <= 0 {
		fallbackAttempts = 1
	}

	return NewPrimaryFallback(primary, fallback, primaryAttempts, fallbackAttempts), nil
}
