package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"mindspace/internal/domain/model"
)

var (
	snapEnc cbor.EncMode
	snapDec cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	snapEnc, err = opts.EncMode()
	if err != nil {
		panic("redis: CBOR encoder initialization failed: " + err.Error())
	}
	snapDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("redis: CBOR decoder initialization failed: " + err.Error())
	}
}

// ErrCacheMiss reports that no snapshot is stored for the key.
var ErrCacheMiss = errors.New("cache miss")

// SessionCache stores CBOR snapshots of sessions. Message content inside a
// snapshot is still sealed; the cache never sees plaintext. A snapshot never
// outlives the session's ExpiresAt.
type SessionCache struct {
	client RedisClient
	maxTTL time.Duration
}

func NewSessionCache(client RedisClient, maxTTL time.Duration) *SessionCache {
	if maxTTL <= 0 {
		maxTTL = time.Hour
	}
	return &SessionCache{client: client, maxTTL: maxTTL}
}

func sessionKey(id string) string { return "session:snap:" + id }

func (c *SessionCache) Store(ctx context.Context, s *model.Session, now time.Time) error {
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return c.Delete(ctx, s.ID)
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	data, err := snapEnc.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	return c.client.Set(ctx, sessionKey(s.ID), data, ttl)
}

func (c *SessionCache) Load(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.client.GetBytes(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	var s model.Session
	if err := snapDec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &s, nil
}

// Delete evicts snapshots; deleting an absent key is not an error.
func (c *SessionCache) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	return c.client.Del(ctx, keys...)
}
