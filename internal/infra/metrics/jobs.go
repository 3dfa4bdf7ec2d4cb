package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Background jobs run on the worker pool, labeled by kind and status.",
	},
	[]string{"kind", "status"}, // status: 'completed', 'failed', 'dropped'
)

func IncJob(kind, status string) {
	jobsProcessedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
