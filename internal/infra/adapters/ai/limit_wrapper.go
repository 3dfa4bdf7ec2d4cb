package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindspace/internal/domain"
	"mindspace/internal/domain/ports/adapter"
	"mindspace/internal/infra/metrics"
)

var _ adapter.Classifier = (*limitedClassifier)(nil)

// limitedClassifier bounds concurrency and per-call latency. Every failure,
// including a timeout or a cancelled wait for a slot, is reported as
// domain.ErrClassifierUnavailable.
type limitedClassifier struct {
	inner   adapter.Classifier
	sem     chan struct{}
	timeout time.Duration
}

func NewLimitedClassifier(inner adapter.Classifier, maxConcurrent int, timeout time.Duration) adapter.Classifier {
	l := &limitedClassifier{inner: inner, timeout: timeout}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedClassifier) Name() string { return l.inner.Name() }

func (l *limitedClassifier) Classify(ctx context.Context, req adapter.ClassifyRequest) (adapter.Classification, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	start := time.Now()
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			metrics.ObserveClassifierCall(l.Name(), "busy", time.Since(start))
			return adapter.Classification{}, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, ctx.Err())
		}
	}

	type result struct {
		c   adapter.Classification
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := l.inner.Classify(ctx, req)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			outcome := "error"
			if errors.Is(r.err, context.DeadlineExceeded) {
				outcome = "timeout"
			}
			metrics.ObserveClassifierCall(l.Name(), outcome, time.Since(start))
			return adapter.Classification{}, fmt.Errorf("%w: %s: %v", domain.ErrClassifierUnavailable, l.Name(), r.err)
		}
		metrics.ObserveClassifierCall(l.Name(), "ok", time.Since(start))
		return r.c, nil
	case <-ctx.Done():
		metrics.ObserveClassifierCall(l.Name(), "timeout", time.Since(start))
		return adapter.Classification{}, fmt.Errorf("%w: %s: %v", domain.ErrClassifierUnavailable, l.Name(), ctx.Err())
	}
}
