package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/metrics"
	red "mindspace/internal/infra/redis"
)

var _ repository.SessionRepository = (*sessionRepoCacheDecorator)(nil)

// snapshotCache is the subset of red.SessionCache the decorator needs.
type snapshotCache interface {
	Store(ctx context.Context, s *model.Session, now time.Time) error
	Load(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, ids ...string) error
}

// sessionRepoCacheDecorator serves FindByID from session snapshots and keeps
// them in step with every write. Lists always go to the inner repository.
type sessionRepoCacheDecorator struct {
	inner repository.SessionRepository
	cache snapshotCache
	now   func() time.Time
	log   *zerolog.Logger
}

func NewSessionRepoCacheDecorator(inner repository.SessionRepository, cache *red.SessionCache, log *zerolog.Logger) repository.SessionRepository {
	return newSessionRepoCacheDecorator(inner, cache, time.Now, log)
}

func newSessionRepoCacheDecorator(inner repository.SessionRepository, cache snapshotCache, now func() time.Time, log *zerolog.Logger) *sessionRepoCacheDecorator {
	l := log.With().Str("component", "session_cache").Logger()
	return &sessionRepoCacheDecorator{inner: inner, cache: cache, now: now, log: &l}
}

func (d *sessionRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, s *model.Session) error {
	if err := d.inner.Create(ctx, tx, s); err != nil {
		return err
	}
	// inside a caller transaction the row may still roll back
	if tx == nil {
		d.store(ctx, s)
	}
	return nil
}

func (d *sessionRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string, asOf time.Time) (*model.Session, error) {
	if tx == nil {
		s, err := d.cache.Load(ctx, id)
		switch {
		case err == nil:
			if s.Expired(asOf) {
				metrics.IncCacheRequest("session", "expired")
				_ = d.cache.Delete(ctx, id)
				return nil, domain.ErrNotFound
			}
			metrics.IncCacheRequest("session", "hit")
			return s, nil
		case errors.Is(err, red.ErrCacheMiss):
			metrics.IncCacheRequest("session", "miss")
		default:
			metrics.IncCacheRequest("session", "error")
			d.log.Warn().Err(err).Msg("snapshot load failed; falling back to store")
		}
	}
	s, err := d.inner.FindByID(ctx, tx, id, asOf)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		d.store(ctx, s)
	}
	return s, nil
}

func (d *sessionRepoCacheDecorator) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, asOf time.Time, offset, limit int) ([]*model.Session, error) {
	return d.inner.ListByOwner(ctx, tx, ownerID, asOf, offset, limit)
}

func (d *sessionRepoCacheDecorator) ListCrisis(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.Session, error) {
	return d.inner.ListCrisis(ctx, tx, asOf, limit)
}

// Update invalidates before writing so a failed write can never leave a
// snapshot newer than the store.
func (d *sessionRepoCacheDecorator) Update(ctx context.Context, id string, asOf time.Time, fn repository.SessionMutation) (*model.Session, error) {
	_ = d.cache.Delete(ctx, id)
	s, err := d.inner.Update(ctx, id, asOf, fn)
	if err != nil {
		return nil, err
	}
	d.store(ctx, s)
	return s, nil
}

func (d *sessionRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id string) error {
	_ = d.cache.Delete(ctx, id)
	return d.inner.Delete(ctx, tx, id)
}

// DeleteExpired evicts the purged ids; snapshots TTL out on their own too, so
// a failed eviction is only logged.
func (d *sessionRepoCacheDecorator) DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	ids, err := d.inner.DeleteExpired(ctx, asOf, limit)
	if len(ids) > 0 {
		if derr := d.cache.Delete(ctx, ids...); derr != nil {
			d.log.Warn().Err(derr).Int("count", len(ids)).Msg("evict purged snapshots failed")
		}
	}
	return ids, err
}

func (d *sessionRepoCacheDecorator) store(ctx context.Context, s *model.Session) {
	if err := d.cache.Store(ctx, s, d.now()); err != nil {
		d.log.Warn().Err(err).Msg("snapshot store failed")
	}
}
