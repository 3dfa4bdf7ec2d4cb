package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one periodic unit of work.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler runs a Job once at start and then every interval until stopped.
// A failing run is logged and retried on the next tick.
type Scheduler struct {
	interval time.Duration
	timeout  time.Duration
	job      Job
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler for job. If interval <= 0 it defaults
// to 1 minute; each run is bounded by the interval.
func NewScheduler(interval time.Duration, job Job, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Str("job", job.Name()).Logger()
	return &Scheduler{interval: interval, timeout: interval, job: job, log: &l}
}

// Start begins the loop in a background goroutine; calling it again while
// running has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("job panicked")
		}
	}()
	if err := s.job.RunOnce(runCtx); err != nil {
		s.log.Error().Err(err).Msg("job run failed; retrying next tick")
	}
}

// Stop cancels the loop and waits for the current run to finish. It is
// idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
