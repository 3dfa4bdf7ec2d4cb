package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		decryptFailuresTotal,
		rateLimitedTotal,
		identitiesRegisteredTotal,
		authFailuresTotal,
	)
}

var (
	decryptFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decrypt_failures_total",
			Help: "Envelopes that failed to decrypt and were rendered as a placeholder.",
		},
		[]string{"field"}, // 'message', 'title', 'contact'
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the sensitive-operation rate limiter.",
		},
		[]string{"op"},
	)

	identitiesRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "identities_registered_total",
			Help: "Total number of pseudonymous identities registered.",
		},
	)

	authFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Failed authentication attempts.",
		},
	)
)

func IncDecryptFailure(field string) {
	decryptFailuresTotal.WithLabelValues(norm(field)).Inc()
}

func IncRateLimited(op string) {
	rateLimitedTotal.WithLabelValues(norm(op)).Inc()
}

func IncIdentitiesRegistered() { identitiesRegisteredTotal.Inc() }

func IncAuthFailure() { authFailuresTotal.Inc() }
