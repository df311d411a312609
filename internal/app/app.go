// Package app assembles the classifier from configuration for the server and
// the CLI.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/ai"
	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/config"
	"github.com/applifix/backend/internal/rules"
)

// NewGenerator returns the configured model client, or nil when the provider
// is "none" so classification runs on the keyword rules alone.
func NewGenerator(cfg config.Config) (ai.Generator, error) {
	switch p := cfg.ResolvedAIProvider(); p {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderMock:
		return ai.MockGenerator{ModelVersion: "mock-v1"}, nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider: %w", classify.ErrNotConfigured)
		}
		return ai.NewGemini(ai.Options{
			BaseURL:  cfg.GeminiBaseURL,
			Model:    cfg.GeminiModel,
			APIKey:   cfg.GeminiAPIKey,
			Timeout:  cfg.AITimeout,
			CacheTTL: cfg.AICacheTTL,
		}), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider: %w", classify.ErrNotConfigured)
		}
		return ai.NewOpenAICompat(ai.Options{
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			APIKey:   cfg.OpenAIAPIKey,
			Timeout:  cfg.AITimeout,
			CacheTTL: cfg.AICacheTTL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", p)
	}
}

// NewResolver wires the model client, keyword rules and clock settings.
func NewResolver(cfg config.Config, kw *rules.KeywordRules, logger zerolog.Logger) (*classify.Resolver, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	r := &classify.Resolver{
		Fallback: classify.NewFallback(kw),
		Hours: classify.Hours{
			AfterHoursStart:    cfg.AfterHoursStart,
			AfterHoursEnd:      cfg.AfterHoursEnd,
			BusinessHoursStart: cfg.BusinessHoursStart,
			BusinessHoursEnd:   cfg.BusinessHoursEnd,
		},
		Location: loc,
		Logger:   logger,
	}
	if gen != nil {
		r.AI = classify.NewAIClassifier(gen, logger)
	}
	return r, nil
}
