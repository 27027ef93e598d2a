// Package metrics exposes Prometheus collectors for the engine's hot
// paths. Collectors are registered on an explicit Registerer so tests can
// construct their own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's collectors.
type Metrics struct {
	ActionsExecuted  *prometheus.CounterVec
	ActionsFiltered  prometheus.Counter
	Summarizations   prometheus.Counter
	DiagnosisRuns    prometheus.Counter
	SandboxEvents    *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	StateTransitions *prometheus.CounterVec
	ProposalSeconds  prometheus.Histogram
}

// New registers the collectors on reg and returns the bundle. Passing
// prometheus.DefaultRegisterer gives process-global metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codepilot_actions_executed_total",
			Help: "Actions executed, by name and result status.",
		}, []string{"action", "status"}),
		ActionsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codepilot_actions_filtered_total",
			Help: "Actions dropped by the safety filter.",
		}),
		Summarizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codepilot_summarizations_total",
			Help: "Context summarization passes performed.",
		}),
		DiagnosisRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codepilot_diagnosis_runs_total",
			Help: "Diagnosis phases triggered by the error-rate heuristic.",
		}),
		SandboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codepilot_sandbox_events_total",
			Help: "Sandbox lifecycle events, by action and status.",
		}, []string{"action", "status"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codepilot_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codepilot_state_transitions_total",
			Help: "Engine state transitions, by source and destination.",
		}, []string{"from", "to"}),
		ProposalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codepilot_proposal_duration_seconds",
			Help:    "Proposer round-trip latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	reg.MustRegister(
		m.ActionsExecuted,
		m.ActionsFiltered,
		m.Summarizations,
		m.DiagnosisRuns,
		m.SandboxEvents,
		m.BreakerState,
		m.StateTransitions,
		m.ProposalSeconds,
	)
	return m
}
