package oracle

import (
	"fmt"

	"assistant/pkg/config"
)

// NewClient builds the vendor client for the configured provider and wraps
// it in the resilience middleware (retry over circuit breaker).
func NewClient(cfg config.OracleConfig, apiKey string) (Client, error) {
	var base Client
	switch cfg.Provider {
	case config.ProviderAnthropic:
		base = NewAnthropicClient(apiKey, cfg.Model)
	case config.ProviderOpenAI:
		base = NewOpenAIClient(apiKey, cfg.Model)
	case config.ProviderGemini:
		base = NewGeminiClient(apiKey, cfg.Model)
	case config.ProviderOllama:
		client, err := NewOllamaClient(cfg.OllamaHost, cfg.Model)
		if err != nil {
			return nil, err
		}
		base = client
	case config.ProviderMock:
		return NewMockClient(""), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}

	return NewResilientClient(base), nil
}
