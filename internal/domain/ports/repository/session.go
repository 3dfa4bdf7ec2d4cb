package repository

import (
	"context"
	"time"

	"mindspace/internal/domain/model"
)

// -----------------------------
// Sessions
// -----------------------------

// SessionMutation is applied to a session inside its atomic update unit.
// Returning an error aborts the update and nothing is persisted.
type SessionMutation func(s *model.Session) error

type SessionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Session) error
	// FindByID returns the session with its full message log.
	FindByID(ctx context.Context, tx Tx, id string, asOf time.Time) (*model.Session, error)
	// ListByOwner returns session headers (no messages), newest first.
	ListByOwner(ctx context.Context, tx Tx, ownerID string, asOf time.Time, offset, limit int) ([]*model.Session, error)
	// ListCrisis returns open sessions with a detected crisis, most recent activity first.
	ListCrisis(ctx context.Context, tx Tx, asOf time.Time, limit int) ([]*model.Session, error)
	// Update loads the session, applies fn and persists the result as one
	// atomic unit serialised against other updates of the same session.
	Update(ctx context.Context, id string, asOf time.Time, fn SessionMutation) (*model.Session, error)
	Delete(ctx context.Context, tx Tx, id string) error
	// DeleteExpired removes up to limit sessions expired at asOf (with their
	// messages) and returns their ids.
	DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error)
}
