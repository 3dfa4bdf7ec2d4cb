package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt size with tiktoken. If the encoding cannot be
// loaded (it is fetched on first use) it falls back to ~4 bytes per token.
type TokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (c *TokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err == nil {
		c.enc = enc
	}
}

func (c *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	if c == nil {
		return heuristicTokens(s)
	}
	c.once.Do(c.load)
	if c.enc == nil {
		return heuristicTokens(s)
	}
	return len(c.enc.Encode(s, nil, nil))
}

func heuristicTokens(s string) int {
	return (len(s) + 3) / 4
}
