package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(snapshotCacheTotal) }

var snapshotCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Redis snapshot cache lookups by outcome (hit, miss, expired, error).",
	},
	[]string{"cache", "result"},
)

func IncCacheRequest(cache, result string) {
	snapshotCacheTotal.WithLabelValues(norm(cache), norm(result)).Inc()
}
