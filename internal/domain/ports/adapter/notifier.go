package adapter

import (
	"context"
	"time"

	"mindspace/internal/domain/model"
)

// EscalationEvent carries pseudonymous identifiers only; no message content.
type EscalationEvent struct {
	SessionID        string            `json:"session_id"`
	OwnerPseudonymID string            `json:"owner_pseudonym_id"`
	Level            model.CrisisLevel `json:"level"`
	At               time.Time         `json:"at"`
}

// EscalationNotifier is the side-effect hook fired after a session is moved to
// crisis_escalated.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, ev EscalationEvent) error
}
