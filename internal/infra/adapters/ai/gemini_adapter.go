// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/infra/metrics"
)

var _ adapter.Classifier = (*GeminiClassifier)(nil)

type GeminiClassifier struct {
	client    *genai.Client
	model     string
	counter   *TokenCounter
	maxTokens int
}

// NewGeminiClassifier creates a Gemini classifier using the official SDK.
func NewGeminiClassifier(ctx context.Context, apiKey, baseURL, model string, maxContextTokens int) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClassifier{
		client:    c,
		model:     model,
		counter:   NewTokenCounter(model),
		maxTokens: maxContextTokens,
	}, nil
}

func (g *GeminiClassifier) Name() string { return "gemini" }

func (g *GeminiClassifier) Classify(ctx context.Context, req adapter.ClassifyRequest) (adapter.Classification, error) {
	convo, tokens := buildConversation(req, g.counter, g.maxTokens)
	metrics.ObserveClassifierContext(g.Name(), tokens)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGenAIHistory(convo), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{
			{Text: systemPrompt},
			{Text: contextNote(req.Context)},
		}},
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return adapter.Classification{}, err
	}
	text := resp.Text()
	if text == "" {
		return adapter.Classification{}, errEmptyResponse
	}
	return parseClassification(text)
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
