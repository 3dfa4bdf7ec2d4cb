package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
)

// fakeClient is an in-memory RedisClient.
type fakeClient struct {
	mu        sync.Mutex
	data      map[string][]byte
	ttl       map[string]time.Duration
	published map[string][][]byte
	failIncr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string][]byte{}, ttl: map[string]time.Duration{}, published: map[string][][]byte{}}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		return errors.New("unsupported value")
	}
	f.ttl[key] = exp
	return nil
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	b, err := f.GetBytes(ctx, key)
	return string(b), err
}

func (f *fakeClient) GetBytes(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	if !ok {
		return nil, Nil
	}
	return b, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	if f.failIncr != nil {
		return 0, f.failIncr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	if b, ok := f.data[key]; ok {
		n = int64(len(b))
	}
	n++
	f.data[key] = make([]byte, n)
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl[key] = exp
	return nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
		delete(f.ttl, k)
	}
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], message.([]byte))
	return nil
}

func (f *fakeClient) Close() error { return nil }

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	fc := newFakeClient()
	rl := NewRateLimiter(fc)
	ctx := context.Background()
	key := SensitiveKey("login", "abc")
	for i := 1; i <= 5; i++ {
		ok, err := rl.Allow(ctx, key, 5, 15*time.Minute)
		if err != nil || !ok {
			t.Fatalf("hit %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 5, 15*time.Minute); ok {
		t.Fatal("6th hit allowed")
	}
	if fc.ttl[key] != 15*time.Minute {
		t.Fatalf("window ttl = %s", fc.ttl[key])
	}

	fc.failIncr = errors.New("down")
	if _, err := rl.Allow(ctx, "k2", 5, time.Minute); err == nil {
		t.Fatal("redis errors must surface")
	}
}

func TestSessionCache_RoundTripAndTTL(t *testing.T) {
	fc := newFakeClient()
	c := NewSessionCache(fc, time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

	s, _ := model.NewSession("s1", "p1", 7, now)
	title := model.Envelope{Ciphertext: []byte{1, 2}, Nonce: []byte{3}, Tag: []byte{4}, KeyVersion: 2}
	s.Title = &title
	score := 6
	_ = s.Append(model.Message{ID: "m1", Role: model.RoleUser, Content: title}, now)
	_, _ = s.Label("m1", model.Labels{Sentiment: model.SentimentNeutral, Topics: []model.Topic{model.TopicSchool}, WellnessScore: &score}, now)

	if err := c.Store(ctx, s, now); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if fc.ttl[sessionKey("s1")] != time.Hour {
		t.Fatalf("ttl must be capped at maxTTL, got %s", fc.ttl[sessionKey("s1")])
	}
	got, err := c.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.ExpiresAt.Equal(s.ExpiresAt) || got.Title == nil || got.Title.KeyVersion != 2 {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
	if len(got.Messages) != 1 || !got.Messages[0].Labeled() || *got.Messages[0].WellnessScore != 6 {
		t.Fatalf("messages mismatch: %+v", got.Messages)
	}

	// close to expiry the ttl is bounded by ExpiresAt
	late := s.ExpiresAt.Add(-time.Minute)
	_ = c.Store(ctx, s, late)
	if fc.ttl[sessionKey("s1")] != time.Minute {
		t.Fatalf("ttl = %s, want 1m", fc.ttl[sessionKey("s1")])
	}
	// already expired: evicted instead of stored
	_ = c.Store(ctx, s, s.ExpiresAt)
	if _, err := c.Load(ctx, "s1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired snapshot kept: %v", err)
	}
	if err := c.Delete(ctx, "s1", "never-cached"); err != nil {
		t.Fatalf("Delete must be idempotent: %v", err)
	}
}

func TestEscalationPublisher(t *testing.T) {
	fc := newFakeClient()
	p := NewEscalationPublisher(fc)
	ev := adapter.EscalationEvent{SessionID: "s1", OwnerPseudonymID: "p1", Level: model.CrisisImmediate, At: time.Unix(0, 0).UTC()}
	if err := p.NotifyEscalation(context.Background(), ev); err != nil {
		t.Fatalf("NotifyEscalation: %v", err)
	}
	msgs := fc.published[EscalationChannel]
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	var got adapter.EscalationEvent
	if err := json.Unmarshal(msgs[0], &got); err != nil || got.SessionID != "s1" || got.Level != model.CrisisImmediate {
		t.Fatalf("payload = %s (%v)", msgs[0], err)
	}
}
