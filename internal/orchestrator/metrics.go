package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseflow",
			Subsystem: "orchestrator",
			Name:      "turns_total",
			Help:      "Turns processed, by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "caseflow",
			Subsystem: "orchestrator",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of claimed turns",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseflow",
			Subsystem: "orchestrator",
			Name:      "dispatches_total",
			Help:      "Agent dispatches, by agent",
		},
		[]string{"agent"},
	)

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseflow",
			Subsystem: "orchestrator",
			Name:      "escalations_total",
			Help:      "Escalations to a human, by reason and transfer result",
		},
		[]string{"reason", "result"},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseflow",
			Subsystem: "executor",
			Name:      "messages_total",
			Help:      "Outbound message attempts, by result (sent or skip reason)",
		},
		[]string{"result"},
	)

	invalidTransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "invalid_owner_transitions_total",
			Help:      "Owner changes outside the legal handoff graph",
		},
	)
)
