package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/infra/metrics"
)

var _ adapter.Classifier = (*OpenAIClassifier)(nil)

// OpenAIClassifier asks a Chat Completions model (OpenAI or any compatible
// gateway) for a reply plus labels in one JSON object.
type OpenAIClassifier struct {
	client    openai.Client
	model     string
	counter   *TokenCounter
	maxTokens int
}

func NewOpenAIClassifier(apiKey, baseURL, model string, maxContextTokens int) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIClassifier{
		client:    openai.NewClient(opts...),
		model:     model,
		counter:   NewTokenCounter(model),
		maxTokens: maxContextTokens,
	}, nil
}

func (o *OpenAIClassifier) Name() string { return "openai" }

func (o *OpenAIClassifier) Classify(ctx context.Context, req adapter.ClassifyRequest) (adapter.Classification, error) {
	convo, tokens := buildConversation(req, o.counter, o.maxTokens)
	metrics.ObserveClassifierContext(o.Name(), tokens)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(convo)+2)
	msgs = append(msgs, openai.SystemMessage(systemPrompt), openai.SystemMessage(contextNote(req.Context)))
	for _, m := range convo {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return adapter.Classification{}, err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return parseClassification(c.Message.Content)
		}
	}
	return adapter.Classification{}, errEmptyResponse
}
