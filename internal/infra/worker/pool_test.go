package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPool_RunsAndDrainsOnStop(t *testing.T) {
	p := NewPool(2, 16, nil)
	p.Start(context.Background())
	var ran int32
	for i := 0; i < 10; i++ {
		if err := p.Submit("test", func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Stop()
	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Fatalf("ran %d tasks, want 10", got)
	}
	if err := p.Submit("test", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after Stop = %v", err)
	}
	p.Stop() // idempotent
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 1, nil) // not started: nothing consumes
	noop := func(ctx context.Context) error { return nil }
	if err := p.Submit("test", noop); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := p.Submit("test", noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Submit = %v, want ErrQueueFull", err)
	}
	if err := p.Submit("test", nil); err == nil {
		t.Fatal("nil task accepted")
	}
}

func TestPool_SurvivesPanicsAndErrors(t *testing.T) {
	p := NewPool(1, 8, nil)
	p.Start(context.Background())
	var after int32
	_ = p.Submit("test", func(ctx context.Context) error { panic("boom") })
	_ = p.Submit("test", func(ctx context.Context) error { return errors.New("nope") })
	_ = p.Submit("test", func(ctx context.Context) error {
		atomic.StoreInt32(&after, 1)
		return nil
	})
	p.Stop()
	if atomic.LoadInt32(&after) != 1 {
		t.Fatal("worker died after panic")
	}
}
