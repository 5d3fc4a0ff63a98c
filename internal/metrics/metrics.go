// Package metrics defines the Prometheus instrumentation the orchestrator
// and HTTP status server expose: per-stage duration, audit score, and
// deployment/verification outcome counters (SPEC_FULL.md DOMAIN STACK).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration records how long each stage of a workflow run took.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractforge_stage_duration_seconds",
			Help:    "Duration of each workflow stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	// AuditScore is the most recent audit verdict's normalized score per run.
	AuditScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contractforge_audit_score",
			Help: "Most recent audit verdict score (0-100) for a run",
		},
		[]string{"run_id"},
	)

	// DeploymentsTotal counts deployment attempts by terminal result.
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractforge_deployments_total",
			Help: "Total deployment attempts by result",
		},
		[]string{"network", "result"},
	)

	// VerificationsTotal counts verification attempts by outcome.
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractforge_verifications_total",
			Help: "Total verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	// WorkflowRunsTotal counts completed runs by terminal stage.
	WorkflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractforge_workflow_runs_total",
			Help: "Total workflow runs by terminal stage (Done/Failed)",
		},
		[]string{"terminal_stage"},
	)

	// AuditGateTrips counts runs rejected at the policy gate.
	AuditGateTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contractforge_audit_gate_trips_total",
			Help: "Total runs failed at PolicyGate due to required review",
		},
	)
)
