package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingJob struct {
	runs  int32
	fail  bool
	panic bool
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) RunOnce(ctx context.Context) error {
	n := atomic.AddInt32(&j.runs, 1)
	if j.panic && n == 1 {
		panic("boom")
	}
	if j.fail {
		return errors.New("nope")
	}
	return nil
}

func waitRuns(t *testing.T, j *countingJob, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&j.runs) < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d runs, want %d", atomic.LoadInt32(&j.runs), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	log := zerolog.Nop()
	j := &countingJob{}
	s := NewScheduler(10*time.Millisecond, j, &log)
	s.Start(context.Background())
	s.Start(context.Background()) // no second loop
	waitRuns(t, j, 3)
	s.Stop()
	after := atomic.LoadInt32(&j.runs)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&j.runs) != after {
		t.Fatal("job ran after Stop")
	}
	s.Stop()
}

func TestScheduler_SurvivesFailuresAndPanics(t *testing.T) {
	log := zerolog.Nop()
	j := &countingJob{fail: true, panic: true}
	s := NewScheduler(5*time.Millisecond, j, &log)
	s.Start(context.Background())
	waitRuns(t, j, 3)
	s.Stop()
}

func TestScheduler_StopsWithParentContext(t *testing.T) {
	log := zerolog.Nop()
	j := &countingJob{}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(time.Hour, j, &log)
	s.Start(ctx)
	waitRuns(t, j, 1)
	cancel()
	s.Stop() // returns once the loop has exited
}
