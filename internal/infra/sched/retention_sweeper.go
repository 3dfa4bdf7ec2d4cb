package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mindspace/internal/domain/ports/repository"
	"mindspace/internal/infra/metrics"
)

const (
	kindIdentity = "identity"
	kindSession  = "session"

	defaultBatch = 500
	// bounds one pass; anything left is picked up on the next tick
	maxBatchesPerPass = 100
)

// SweepReport counts what one pass removed.
type SweepReport struct {
	Identities int
	Sessions   int
}

// RetentionSweeper purges identities and sessions whose expiry has passed.
// The two collections are swept independently: a failure in one is logged,
// counted and retried next pass without blocking the other. Session snapshot
// eviction happens in the cached repository's DeleteExpired.
type RetentionSweeper struct {
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
	batch      int
	now        func() time.Time
	log        *zerolog.Logger
}

func NewRetentionSweeper(
	identities repository.IdentityRepository,
	sessions repository.SessionRepository,
	batch int,
	now func() time.Time,
	logger *zerolog.Logger,
) *RetentionSweeper {
	if batch <= 0 {
		batch = defaultBatch
	}
	if now == nil {
		now = time.Now
	}
	l := logger.With().Str("component", "RetentionSweeper").Logger()
	return &RetentionSweeper{identities: identities, sessions: sessions, batch: batch, now: now, log: &l}
}

func (w *RetentionSweeper) Name() string { return "retention_sweep" }

// RunOnce lets the sweeper be driven by scheduler.Scheduler.
func (w *RetentionSweeper) RunOnce(ctx context.Context) error {
	_, err := w.SweepOnce(ctx)
	return err
}

// SweepOnce runs one full pass as of the current clock. It is idempotent:
// a second pass at the same instant removes nothing.
func (w *RetentionSweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	asOf := w.now()
	var rep SweepReport
	var errs []error

	n, err := w.sweep(ctx, kindSession, asOf, w.sessions.DeleteExpired)
	rep.Sessions = n
	if err != nil {
		errs = append(errs, err)
	}
	n, err = w.sweep(ctx, kindIdentity, asOf, w.identities.DeleteExpired)
	rep.Identities = n
	if err != nil {
		errs = append(errs, err)
	}

	metrics.ObserveSweepDuration(time.Since(start).Milliseconds())
	if rep.Identities+rep.Sessions > 0 {
		w.log.Info().Int("identities", rep.Identities).Int("sessions", rep.Sessions).Msg("expired records purged")
	}
	return rep, errors.Join(errs...)
}

type deleteFunc func(ctx context.Context, asOf time.Time, limit int) ([]string, error)

func (w *RetentionSweeper) sweep(ctx context.Context, kind string, asOf time.Time, del deleteFunc) (int, error) {
	total := 0
	for i := 0; i < maxBatchesPerPass; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := del(ctx, asOf, w.batch)
		if err != nil {
			metrics.IncRetentionSweepError(kind)
			w.log.Error().Err(err).Str("kind", kind).Int("purged_so_far", total).Msg("sweep batch failed")
			return total, fmt.Errorf("sweep %s: %w", kind, err)
		}
		total += len(ids)
		metrics.AddRetentionPurged(kind, len(ids))
		if len(ids) < w.batch {
			break
		}
	}
	return total, nil
}
