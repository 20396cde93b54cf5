// Package metrics exposes Prometheus collectors for the monitor loop and
// its collaborators. Collectors are registered on the default registry and
// served by the dashboard's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus collectors are package-level by convention
var (
	// CyclesTotal counts completed monitor cycles by outcome (ok, error,
	// dropped).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_cycles_total",
		Help: "Monitor cycles by outcome",
	}, []string{"outcome"})

	// CycleDuration tracks the wall time of a full monitor cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_cycle_duration_seconds",
		Help:    "Duration of a full monitor cycle",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// OracleRequests counts oracle calls by provider and status; error
	// status carries the classified error type.
	OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_oracle_requests_total",
		Help: "Oracle completions by provider and status",
	}, []string{"provider", "status"})

	// FallbackScores counts items scored by the keyword fallback instead
	// of the oracle.
	FallbackScores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_fallback_scores_total",
		Help: "Items scored by the deterministic fallback",
	})

	// ItemsScored counts scored items by source.
	ItemsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_items_scored_total",
		Help: "Monitored items scored, by source",
	}, []string{"source"})

	// ConflictsDetected counts conflict groups found per cycle.
	ConflictsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_conflicts_detected_total",
		Help: "Conflict groups detected",
	})

	// Interactions counts opened interactions by final status.
	Interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_interactions_total",
		Help: "Interactions by terminal status",
	}, []string{"status"})

	// ActionsExecuted counts executor steps by kind and result.
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_actions_executed_total",
		Help: "Executor steps by kind and result",
	}, []string{"kind", "result"})

	// AgentState reports the current state machine mode as a one-hot gauge.
	AgentState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "assistant_agent_state",
		Help: "Current agent state (1 for the active state)",
	}, []string{"state"})

	// ConsecutiveErrors reports the current backoff escalation counter.
	ConsecutiveErrors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_consecutive_errors",
		Help: "Consecutive collaborator failures feeding backoff",
	})
)

// SetAgentState flips the one-hot state gauge to the given state.
func SetAgentState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1.0
		}
		AgentState.WithLabelValues(s).Set(v)
	}
}
