package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func env(s string) model.Envelope {
	return model.Envelope{Ciphertext: []byte(s), Nonce: []byte("n"), Tag: []byte("t"), KeyVersion: 1}
}

func TestIdentityRepo_ExpiryAndPurge(t *testing.T) {
	ctx := context.Background()
	r := NewIdentityRepo()
	id, _ := model.NewIdentity("p1", "hash", 1, t0)
	if err := r.Create(ctx, nil, id); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(ctx, nil, id); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate create: %v", err)
	}
	if _, err := r.FindByID(ctx, nil, "p1", t0.Add(time.Hour)); err != nil {
		t.Fatalf("FindByID before expiry: %v", err)
	}
	exp := t0.Add(24 * time.Hour)
	if _, err := r.FindByID(ctx, nil, "p1", exp); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired record returned: %v", err)
	}
	ids, err := r.DeleteExpired(ctx, exp, 10)
	if err != nil || len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("DeleteExpired = %v, %v", ids, err)
	}
	ids, _ = r.DeleteExpired(ctx, exp, 10)
	if len(ids) != 0 || r.Len() != 0 {
		t.Fatalf("second sweep not idempotent: %v", ids)
	}
}

func TestIdentityRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewIdentityRepo()
	id, _ := model.NewIdentity("p1", "hash", 30, t0)
	_ = r.Create(ctx, nil, id)
	got, _ := r.FindByID(ctx, nil, "p1", t0)
	got.CredentialHash = "mutated"
	again, _ := r.FindByID(ctx, nil, "p1", t0)
	if again.CredentialHash != "hash" {
		t.Fatal("caller mutation leaked into store")
	}
}

func TestSessionRepo_UpdateIsAtomicPerSession(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepo()
	s, _ := model.NewSession("s1", "p1", 7, t0)
	if err := r.Create(ctx, nil, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Update(ctx, "s1", t0, func(s *model.Session) error {
				return s.Append(model.Message{ID: fmt.Sprintf("m%02d", i), Role: model.RoleUser, Content: env("x")}, t0)
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := r.FindByID(ctx, nil, "s1", t0)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(got.Messages) != writers || got.Analytics.TotalMessages != writers {
		t.Fatalf("lost updates: %d messages, analytics %d", len(got.Messages), got.Analytics.TotalMessages)
	}
}

func TestSessionRepo_UpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepo()
	s, _ := model.NewSession("s1", "p1", 7, t0)
	_ = r.Create(ctx, nil, s)
	boom := errors.New("boom")
	_, err := r.Update(ctx, "s1", t0, func(s *model.Session) error {
		_ = s.Append(model.Message{ID: "m1", Role: model.RoleUser, Content: env("x")}, t0)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	got, _ := r.FindByID(ctx, nil, "s1", t0)
	if len(got.Messages) != 0 {
		t.Fatal("aborted mutation was persisted")
	}
	if _, err := r.Update(ctx, "missing", t0, func(*model.Session) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing session: %v", err)
	}
}

func TestSessionRepo_ListsAndSweep(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepo()
	for i := 0; i < 5; i++ {
		s, _ := model.NewSession(fmt.Sprintf("s%d", i), "p1", 1, t0.Add(time.Duration(i)*time.Minute))
		_ = s.Append(model.Message{ID: "m", Role: model.RoleUser, Content: env("x")}, s.StartedAt)
		_ = r.Create(ctx, nil, s)
	}
	other, _ := model.NewSession("o1", "p2", 7, t0)
	_ = r.Create(ctx, nil, other)

	list, _ := r.ListByOwner(ctx, nil, "p1", t0, 1, 2)
	if len(list) != 2 || list[0].ID != "s3" || list[1].ID != "s2" {
		t.Fatalf("page = %v", ids(list))
	}
	if list[0].Messages != nil || list[0].Analytics.TotalMessages != 1 {
		t.Fatal("headers must omit messages but keep analytics")
	}

	_, _ = r.Update(ctx, "s1", t0, func(s *model.Session) error {
		s.ApplyCrisis(model.CrisisHigh, t0.Add(10*time.Minute))
		return nil
	})
	_, _ = r.Update(ctx, "s2", t0, func(s *model.Session) error {
		s.ApplyCrisis(model.CrisisImmediate, t0.Add(10*time.Minute))
		return nil
	})
	crisis, _ := r.ListCrisis(ctx, nil, t0, 10)
	if len(crisis) != 1 || crisis[0].ID != "s1" {
		t.Fatalf("crisis list = %v", ids(crisis))
	}

	// p1 sessions have 1 day retention, o1 has 7
	purged, _ := r.DeleteExpired(ctx, t0.Add(48*time.Hour), 3)
	if len(purged) != 3 {
		t.Fatalf("batch limit not honoured: %v", purged)
	}
	purged, _ = r.DeleteExpired(ctx, t0.Add(48*time.Hour), 0)
	if len(purged) != 2 || r.Len() != 1 {
		t.Fatalf("purged = %v, left %d", purged, r.Len())
	}
}

func ids(ss []*model.Session) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}

func TestRateLimiter_Window(t *testing.T) {
	now := t0
	l := NewRateLimiter(func() time.Time { return now })
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(ctx, "k", 5, 15*time.Minute); !ok {
			t.Fatalf("hit %d rejected", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "k", 5, 15*time.Minute); ok {
		t.Fatal("6th hit allowed")
	}
	if ok, _ := l.Allow(ctx, "other", 5, 15*time.Minute); !ok {
		t.Fatal("keys must be independent")
	}
	now = now.Add(15 * time.Minute)
	if ok, _ := l.Allow(ctx, "k", 5, 15*time.Minute); !ok {
		t.Fatal("window did not reset")
	}
}

func TestLocker(t *testing.T) {
	now := t0
	l := NewLocker(func() time.Time { return now })
	ctx := context.Background()
	tok, err := l.TryLock(ctx, "s1", time.Minute)
	if err != nil || tok == "" {
		t.Fatalf("TryLock: %q %v", tok, err)
	}
	if _, err := l.TryLock(ctx, "s1", time.Minute); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("second lock: %v", err)
	}
	_ = l.Unlock(ctx, "s1", "wrong-token")
	if _, err := l.TryLock(ctx, "s1", time.Minute); !errors.Is(err, domain.ErrLocked) {
		t.Fatal("unlock with wrong token released the lease")
	}
	_ = l.Unlock(ctx, "s1", tok)
	if _, err := l.TryLock(ctx, "s1", time.Minute); err != nil {
		t.Fatalf("relock after unlock: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := l.TryLock(ctx, "s1", time.Minute); err != nil {
		t.Fatalf("expired lease not reclaimable: %v", err)
	}
}
