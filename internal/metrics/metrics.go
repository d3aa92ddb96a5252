package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgate_appends_total",
			Help: "Event stream append attempts by outcome",
		},
		[]string{"outcome"}, // ok|error
	)

	ConcurrencyConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventgate_concurrency_conflicts_total",
			Help: "Appends rejected because the expected stream version was stale",
		},
	)

	OutboxProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgate_outbox_processed_total",
			Help: "Outbox entries processed by outcome",
		},
		[]string{"outcome"}, // sent|retried|failed
	)

	OutboxOldestPendingAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventgate_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox entry, 0 when none",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		AppendsTotal,
		ConcurrencyConflictsTotal,
		OutboxProcessedTotal,
		OutboxOldestPendingAge,
	)
}
