package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		classifierCallsTotal,
		classifierLatencyMs,
		classifierContextTokens,
	)
}

var (
	classifierCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_calls_total",
			Help: "Classifier calls per provider and result (ok/error/timeout/busy).",
		},
		[]string{"provider", "result"},
	)

	classifierLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_latency_ms",
			Help:    "Classifier call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 8000},
		},
		[]string{"provider"},
	)

	classifierContextTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_context_tokens",
			Help:    "Estimated prompt tokens sent to the classifier.",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		},
		[]string{"provider"},
	)
)

func ObserveClassifierCall(provider, result string, elapsed time.Duration) {
	classifierCallsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
	classifierLatencyMs.WithLabelValues(norm(provider)).Observe(float64(elapsed.Milliseconds()))
}

func ObserveClassifierContext(provider string, tokens int) {
	classifierContextTokens.WithLabelValues(norm(provider)).Observe(float64(tokens))
}
