package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mindspace/internal/config"
	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/infra/adapters/ai"
)

// NewClassifier builds the configured provider behind the timeout and
// concurrency limit, followed by the keyword classifier. The fallback runs
// outside the provider's deadline so a hung provider still yields labels.
func NewClassifier(ctx context.Context, cfg config.ClassifierConfig, logger *zerolog.Logger) (adapter.Classifier, error) {
	keyword := ai.NewKeywordClassifier()

	var primary adapter.Classifier
	switch cfg.Provider {
	case "openai":
		c, err := ai.NewOpenAIClassifier(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxContextTokens)
		if err != nil {
			return nil, fmt.Errorf("openai classifier: %w", err)
		}
		primary = c
	case "gemini":
		c, err := ai.NewGeminiClassifier(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.Model, cfg.MaxContextTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini classifier: %w", err)
		}
		primary = c
	case "keyword":
		return ai.NewLimitedClassifier(keyword, cfg.ConcurrentLimit, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}

	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("classifier configured")
	limited := ai.NewLimitedClassifier(primary, cfg.ConcurrentLimit, cfg.Timeout)
	return ai.NewChainClassifier(logger, limited, keyword), nil
}
