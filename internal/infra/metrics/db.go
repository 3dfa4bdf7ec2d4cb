package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbConns, dbAcquireWait) }

var (
	dbConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // max, total, idle, in_use
	)
	dbAcquireWait = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_acquire_wait_ms",
			Help: "Cumulative time spent waiting for a pooled connection.",
		},
	)
)

// DBPoolSnapshot is the subset of pgxpool.Stat the service reports.
type DBPoolSnapshot struct {
	Max, Total, Idle, InUse int32
	AcquireWaitMs           int64
}

func SetDBPoolStats(s DBPoolSnapshot) {
	dbConns.WithLabelValues("max").Set(float64(s.Max))
	dbConns.WithLabelValues("total").Set(float64(s.Total))
	dbConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbConns.WithLabelValues("in_use").Set(float64(s.InUse))
	dbAcquireWait.Set(float64(s.AcquireWaitMs))
}
