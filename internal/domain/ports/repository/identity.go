package repository

import (
	"context"
	"time"

	"mindspace/internal/domain/model"
)

// -----------------------------
// Identities
// -----------------------------

// IdentityRepository persists pseudonymous accounts. Reads take asOf and never
// return a record whose expiry is at or before it.
type IdentityRepository interface {
	// Create inserts a new identity; a pseudonym collision is ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, id *model.Identity) error
	Save(ctx context.Context, tx Tx, id *model.Identity) error
	FindByID(ctx context.Context, tx Tx, pseudonymID string, asOf time.Time) (*model.Identity, error)
	// DeleteExpired removes up to limit identities expired at asOf and returns their ids.
	DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error)
}
