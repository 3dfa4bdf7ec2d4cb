package repository

import (
	"context"
	"time"
)

// RateLimiter is a keyed counter with an explicit window TTL.
type RateLimiter interface {
	// Allow counts one hit for key and reports whether it is within limit for the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Locker grants short exclusive leases on a key. TryLock fails with
// domain.ErrLocked while another holder's lease is live.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
