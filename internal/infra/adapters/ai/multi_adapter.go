// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mindspace/internal/domain"
	"mindspace/internal/domain/ports/adapter"
)

var _ adapter.Classifier = (*ChainClassifier)(nil)

// ChainClassifier tries each classifier in order and returns the first
// successful answer.
type ChainClassifier struct {
	chain []adapter.Classifier
	log   *zerolog.Logger
}

func NewChainClassifier(log *zerolog.Logger, chain ...adapter.Classifier) *ChainClassifier {
	return &ChainClassifier{chain: chain, log: log}
}

func (c *ChainClassifier) Name() string {
	names := make([]string, len(c.chain))
	for i, cl := range c.chain {
		names[i] = cl.Name()
	}
	return strings.Join(names, ">")
}

func (c *ChainClassifier) Classify(ctx context.Context, req adapter.ClassifyRequest) (adapter.Classification, error) {
	var errs []error
	for _, cl := range c.chain {
		out, err := cl.Classify(ctx, req)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
		if c.log != nil {
			c.log.Warn().Err(err).Str("classifier", cl.Name()).Msg("classifier failed; trying next")
		}
		if ctx.Err() != nil {
			break
		}
	}
	return adapter.Classification{}, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, errors.Join(errs...))
}
