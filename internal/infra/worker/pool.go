// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"mindspace/internal/infra/metrics"
)

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

// Task is one unit of background work.
type Task = func(ctx context.Context) error

type job struct {
	kind string
	run  Task
}

// Pool is a small fixed-size worker pool for fire-and-forget side effects.
// Submit never blocks; Stop drains what is already queued.
type Pool struct {
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	jobs    chan job
	n       int
	log     *zerolog.Logger
}

func NewPool(workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan job, queue), n: workers, log: &l}
}

// Start launches the workers. ctx is handed to every task; cancelling it does
// not stop the workers, Stop does.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(ctx, id, j)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncJob(j.kind, "panic")
			p.log.Error().Int("worker", id).Str("kind", j.kind).Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()
	if err := j.run(ctx); err != nil {
		metrics.IncJob(j.kind, "error")
		p.log.Warn().Err(err).Int("worker", id).Str("kind", j.kind).Msg("task failed")
		return
	}
	metrics.IncJob(j.kind, "ok")
}

// Stop refuses new work, waits for queued tasks to finish and returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(kind string, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job{kind: kind, run: task}:
		return nil
	default:
		// drop when saturated rather than stall the caller
		metrics.IncJob(kind, "dropped")
		return ErrQueueFull
	}
}
