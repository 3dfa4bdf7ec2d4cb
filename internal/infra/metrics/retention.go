package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		retentionPurgedTotal,
		retentionSweepErrorsTotal,
		retentionSweepDurationMs,
	)
}

var (
	retentionPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_purged_total",
			Help: "Expired records purged by the retention sweeper.",
		},
		[]string{"kind"}, // 'identity', 'session'
	)

	retentionSweepErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_sweep_errors_total",
			Help: "Failed sweep batches, retried on the next tick.",
		},
		[]string{"kind"},
	)

	retentionSweepDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retention_sweep_duration_ms",
			Help:    "Duration of a full sweep pass in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

func AddRetentionPurged(kind string, n int) {
	retentionPurgedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}

func IncRetentionSweepError(kind string) {
	retentionSweepErrorsTotal.WithLabelValues(norm(kind)).Inc()
}

func ObserveSweepDuration(ms int64) {
	retentionSweepDurationMs.Observe(float64(ms))
}
