package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"mindspace/internal/domain/ports/adapter"
)

// EscalationChannel is the pub/sub channel operators subscribe to.
const EscalationChannel = "crisis:escalations"

var _ adapter.EscalationNotifier = (*EscalationPublisher)(nil)

// EscalationPublisher announces escalated sessions on Redis pub/sub. The
// payload carries pseudonymous ids and the level, never content.
type EscalationPublisher struct {
	client  RedisClient
	channel string
}

func NewEscalationPublisher(client RedisClient) *EscalationPublisher {
	return &EscalationPublisher{client: client, channel: EscalationChannel}
}

func (p *EscalationPublisher) NotifyEscalation(ctx context.Context, ev adapter.EscalationEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, b); err != nil {
		return fmt.Errorf("publish escalation: %w", err)
	}
	return nil
}
