// Package memstore holds in-process implementations of the repository ports,
// used by the memory storage backend and by unit tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/repository"
)

var _ repository.IdentityRepository = (*IdentityRepo)(nil)

type IdentityRepo struct {
	mu   sync.RWMutex
	byID map[string]*model.Identity
}

func NewIdentityRepo() *IdentityRepo {
	return &IdentityRepo{byID: make(map[string]*model.Identity)}
}

func (r *IdentityRepo) Create(ctx context.Context, tx repository.Tx, id *model.Identity) error {
	if id.IsZero() {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id.PseudonymID]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[id.PseudonymID] = id.Clone()
	return nil
}

func (r *IdentityRepo) Save(ctx context.Context, tx repository.Tx, id *model.Identity) error {
	if id.IsZero() {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id.PseudonymID]; !ok {
		return domain.ErrNotFound
	}
	r.byID[id.PseudonymID] = id.Clone()
	return nil
}

func (r *IdentityRepo) FindByID(ctx context.Context, tx repository.Tx, pseudonymID string, asOf time.Time) (*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byID[pseudonymID]
	if !ok || id.Expired(asOf) {
		return nil, domain.ErrNotFound
	}
	return id.Clone(), nil
}

func (r *IdentityRepo) DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for k, v := range r.byID {
		if v.Expired(asOf) {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, k := range ids {
		delete(r.byID, k)
	}
	return ids, nil
}

// Len reports the number of stored records, expired or not.
func (r *IdentityRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
