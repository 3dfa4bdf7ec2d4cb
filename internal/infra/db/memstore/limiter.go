package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"mindspace/internal/domain"
	"mindspace/internal/domain/ports/repository"
)

var (
	_ repository.RateLimiter = (*RateLimiter)(nil)
	_ repository.Locker      = (*Locker)(nil)
)

type counter struct {
	n       int
	resetAt time.Time
}

// RateLimiter is a fixed-window keyed counter with TTL.
type RateLimiter struct {
	mu   sync.Mutex
	now  func() time.Time
	hits map[string]*counter
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{now: now, hits: make(map[string]*counter)}
}

func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	c, ok := l.hits[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		l.hits[key] = c
	}
	c.n++
	// expired windows are dropped lazily
	if len(l.hits) > 4096 {
		for k, v := range l.hits {
			if !now.Before(v.resetAt) {
				delete(l.hits, k)
			}
		}
	}
	return c.n <= limit, nil
}

type lease struct {
	token   string
	expires time.Time
}

// Locker grants exclusive, expiring leases in process.
type Locker struct {
	mu     sync.Mutex
	now    func() time.Time
	seq    uint64
	leases map[string]lease
}

func NewLocker(now func() time.Time) *Locker {
	if now == nil {
		now = time.Now
	}
	return &Locker{now: now, leases: make(map[string]lease)}
}

// TryLock fails with domain.ErrLocked when the key is already held.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", domain.ErrLocked
	}
	l.seq++
	tok := strconv.FormatUint(l.seq, 10)
	l.leases[key] = lease{token: tok, expires: now.Add(ttl)}
	return tok, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
