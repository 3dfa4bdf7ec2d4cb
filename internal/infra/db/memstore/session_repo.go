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

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo keeps sessions in memory. Updates of one session are serialised
// by a per-session mutex; different sessions never contend on it.
type SessionRepo struct {
	mu    sync.RWMutex
	byID  map[string]*model.Session
	locks map[string]*sync.Mutex
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		byID:  make(map[string]*model.Session),
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *SessionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Session) error {
	if s == nil || s.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[s.ID] = s.Clone()
	r.locks[s.ID] = &sync.Mutex{}
	return nil
}

func (r *SessionRepo) FindByID(ctx context.Context, tx repository.Tx, id string, asOf time.Time) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok || s.Expired(asOf) {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *SessionRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, asOf time.Time, offset, limit int) ([]*model.Session, error) {
	r.mu.RLock()
	var out []*model.Session
	for _, s := range r.byID {
		if s.OwnerPseudonymID == ownerID && !s.Expired(asOf) {
			out = append(out, s.Header())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, offset, limit), nil
}

func (r *SessionRepo) ListCrisis(ctx context.Context, tx repository.Tx, asOf time.Time, limit int) ([]*model.Session, error) {
	r.mu.RLock()
	var out []*model.Session
	for _, s := range r.byID {
		if s.CrisisDetected && s.Open() && !s.Expired(asOf) {
			out = append(out, s.Header())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return page(out, 0, limit), nil
}

func (r *SessionRepo) Update(ctx context.Context, id string, asOf time.Time, fn repository.SessionMutation) (*model.Session, error) {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	cur, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok || cur.Expired(asOf) {
		return nil, domain.ErrNotFound
	}
	work := cur.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// purged while the mutation ran
	if _, ok := r.byID[id]; !ok {
		return nil, domain.ErrNotFound
	}
	r.byID[id] = work.Clone()
	return work, nil
}

func (r *SessionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.locks, id)
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for k, s := range r.byID {
		if s.Expired(asOf) {
			ids = append(ids, k)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, k := range ids {
		delete(r.byID, k)
		delete(r.locks, k)
	}
	return ids, nil
}

func (r *SessionRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func page(in []*model.Session, offset, limit int) []*model.Session {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []*model.Session{}
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
