package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mindspace/internal/domain/ports/adapter"
)

var (
	_ adapter.EscalationNotifier = (*LogNotifier)(nil)
	_ adapter.EscalationNotifier = (MultiNotifier)(nil)
)

// LogNotifier records escalations in the service log for the operator on duty.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "EscalationNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) NotifyEscalation(ctx context.Context, ev adapter.EscalationEvent) error {
	n.log.Warn().
		Str("session_id", ev.SessionID).
		Str("pseudonym_id", ev.OwnerPseudonymID).
		Str("level", string(ev.Level)).
		Time("at", ev.At).
		Msg("session escalated to crisis")
	return nil
}

// MultiNotifier fans an event out to every notifier; one failing does not
// stop the others.
type MultiNotifier []adapter.EscalationNotifier

func (m MultiNotifier) NotifyEscalation(ctx context.Context, ev adapter.EscalationEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyEscalation(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
