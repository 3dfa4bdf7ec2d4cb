package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/db/memstore"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func seed(t *testing.T, ids *memstore.IdentityRepo, sessions *memstore.SessionRepo, nIdentities, nSessions int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < nIdentities; i++ {
		id, _ := model.NewIdentity(string(rune('a'+i))+"-id", "hash", 30, t0)
		if err := ids.Create(ctx, nil, id); err != nil {
			t.Fatalf("Create identity: %v", err)
		}
	}
	for i := 0; i < nSessions; i++ {
		s, _ := model.NewSession(string(rune('a'+i))+"-s", "a-id", 7, t0)
		if err := sessions.Create(ctx, nil, s); err != nil {
			t.Fatalf("Create session: %v", err)
		}
	}
}

func newSweeper(ids repository.IdentityRepository, sessions repository.SessionRepository, batch int, c *clock) *RetentionSweeper {
	log := zerolog.Nop()
	return NewRetentionSweeper(ids, sessions, batch, c.Now, &log)
}

func TestSweepOnce_PurgesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	ids, sessions := memstore.NewIdentityRepo(), memstore.NewSessionRepo()
	seed(t, ids, sessions, 2, 5)
	c := &clock{t: t0.Add(24 * time.Hour)}
	w := newSweeper(ids, sessions, 2, c)

	rep, err := w.SweepOnce(ctx)
	if err != nil || rep != (SweepReport{}) {
		t.Fatalf("early sweep = %+v, %v", rep, err)
	}

	// sessions expire after 7 days, identities after 30
	c.t = t0.Add(7 * 24 * time.Hour)
	rep, err = w.SweepOnce(ctx)
	if err != nil || rep.Sessions != 5 || rep.Identities != 0 {
		t.Fatalf("sweep = %+v, %v", rep, err)
	}
	if sessions.Len() != 0 || ids.Len() != 2 {
		t.Fatalf("left sessions=%d identities=%d", sessions.Len(), ids.Len())
	}
	if _, err := sessions.FindByID(ctx, nil, "a-s", c.t.Add(-time.Hour)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("purged session still readable: %v", err)
	}

	// idempotent
	rep, err = w.SweepOnce(ctx)
	if err != nil || rep != (SweepReport{}) {
		t.Fatalf("repeat sweep = %+v, %v", rep, err)
	}

	c.t = t0.Add(30 * 24 * time.Hour)
	if rep, _ := w.SweepOnce(ctx); rep.Identities != 2 {
		t.Fatalf("identities purged = %d", rep.Identities)
	}
}

type failingIdentities struct {
	repository.IdentityRepository
	calls int
}

func (f *failingIdentities) DeleteExpired(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	f.calls++
	return nil, errors.New("connection reset")
}

func TestSweepOnce_KindsAreIndependent(t *testing.T) {
	ctx := context.Background()
	sessions := memstore.NewSessionRepo()
	seed(t, memstore.NewIdentityRepo(), sessions, 0, 3)
	bad := &failingIdentities{}
	c := &clock{t: t0.Add(8 * 24 * time.Hour)}
	w := newSweeper(bad, sessions, 10, c)

	rep, err := w.SweepOnce(ctx)
	if err == nil {
		t.Fatal("identity failure not reported")
	}
	if rep.Sessions != 3 || sessions.Len() != 0 {
		t.Fatalf("sessions not swept: %+v", rep)
	}
	// the next pass retries
	_, _ = w.SweepOnce(ctx)
	if bad.calls != 2 {
		t.Fatalf("identity sweep attempts = %d", bad.calls)
	}
	if err := w.RunOnce(ctx); err == nil {
		t.Fatal("RunOnce swallowed the error")
	}
}

func TestSweepOnce_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ids, sessions := memstore.NewIdentityRepo(), memstore.NewSessionRepo()
	seed(t, ids, sessions, 1, 1)
	w := newSweeper(ids, sessions, 10, &clock{t: t0.Add(365 * 24 * time.Hour)})
	if _, err := w.SweepOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if sessions.Len() != 1 {
		t.Fatal("swept with a cancelled context")
	}
}
