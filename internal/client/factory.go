package client

import (
	"context"
	"fmt"

	"gofer/internal/config"
	"gofer/internal/logging"
)

// NewClient creates a completion client for the configured provider.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	provider := cfg.API.GetActiveProvider()

	logging.Debug("creating client", "provider", provider, "model", cfg.Model.Name)

	switch provider {
	case "gemini":
		return NewGeminiClient(ctx, cfg)

	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.API.OllamaBaseURL,
			APIKey:      cfg.API.OllamaKey,
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxOutputTokens,
			HTTPTimeout: cfg.API.Retry.HTTPTimeout,
			MaxRetries:  cfg.API.Retry.MaxRetries,
			RetryDelay:  cfg.API.Retry.RetryDelay,
		})

	default:
		return nil, fmt.Errorf("unknown provider %q (supported: gemini, ollama)", provider)
	}
}
