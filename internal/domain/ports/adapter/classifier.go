package adapter

import (
	"context"

	"mindspace/internal/domain/model"
)

// Message is a plaintext history entry handed to the classifier.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// SessionContext is the light context sent along with each message.
type SessionContext struct {
	SessionID   string
	CrisisLevel model.CrisisLevel
	Audience    string // e.g. "youth"
}

type ClassifyRequest struct {
	Message string
	History []Message
	Context SessionContext
}

// Classification is the contract every classifier must satisfy.
type Classification struct {
	Response      string
	CrisisLevel   model.CrisisLevel
	Sentiment     model.Sentiment
	MessageType   model.MessageType
	Topics        []model.Topic
	WellnessScore *int
}

func (c Classification) Labels() model.Labels {
	return model.Labels{
		Sentiment:     c.Sentiment,
		MessageType:   c.MessageType,
		Topics:        c.Topics,
		WellnessScore: c.WellnessScore,
	}
}

// Classifier produces a reply and risk labels for one message.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
}
