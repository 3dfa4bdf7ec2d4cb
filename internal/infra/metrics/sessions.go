package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sessionsStartedTotal,
		sessionTransitionsTotal,
		messagesAppendedTotal,
		crisisLevelsTotal,
		crisisEscalationsTotal,
		sessionBusyTotal,
	)
}

var (
	sessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_started_total",
			Help: "Total number of sessions started.",
		},
	)

	sessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Session status transitions by target status.",
		},
		[]string{"to"},
	)

	messagesAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_appended_total",
			Help: "Messages appended to sessions by role.",
		},
		[]string{"role"},
	)

	crisisLevelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crisis_levels_total",
			Help: "Crisis levels reported by the classifier.",
		},
		[]string{"level"},
	)

	crisisEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crisis_escalations_total",
			Help: "Sessions moved to crisis_escalated.",
		},
	)

	sessionBusyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_busy_total",
			Help: "Exchanges rejected because another writer held the session lease.",
		},
	)
)

func IncSessionsStarted() { sessionsStartedTotal.Inc() }

func IncSessionTransition(to string) {
	sessionTransitionsTotal.WithLabelValues(norm(to)).Inc()
}

func IncMessagesAppended(role string) {
	messagesAppendedTotal.WithLabelValues(norm(role)).Inc()
}

func IncCrisisLevel(level string) {
	crisisLevelsTotal.WithLabelValues(norm(level)).Inc()
}

func IncCrisisEscalation() { crisisEscalationsTotal.Inc() }

func IncSessionBusy() { sessionBusyTotal.Inc() }
