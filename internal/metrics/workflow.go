// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus instrumentation for the publishing
// workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionflow_transitions_total",
		Help: "Total number of committed status transitions",
	}, []string{"from", "to", "mode"}) // mode=manual|automated

	transitionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionflow_transition_conflicts_total",
		Help: "Total number of transitions abandoned after retry exhaustion",
	})

	publishAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionflow_publish_attempts_total",
		Help: "Automatic publication attempts by outcome",
	}, []string{"outcome"}) // outcome=published|not_ready|error

	schedulingConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionflow_scheduling_conflicts_total",
		Help: "Total number of scheduling conflicts detected during publish validation",
	})

	sessionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sessionflow_sessions_by_status",
		Help: "Number of sessions per lifecycle status (last monitor pass)",
	}, []string{"status"})

	schedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionflow_scheduler_runs_total",
		Help: "Scheduler sweep runs by outcome",
	}, []string{"outcome"}) // outcome=success|partial|skipped

	schedulerItemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionflow_scheduler_item_failures_total",
		Help: "Total number of per-item failures during scheduler sweeps",
	})

	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessionflow_validation_failures_total",
		Help: "Total number of content validation passes with blocking errors",
	})
)

// TransitionApplied records a committed status transition.
func TransitionApplied(from, to string, automated bool) {
	mode := "manual"
	if automated {
		mode = "automated"
	}
	transitionsTotal.WithLabelValues(from, to, mode).Inc()
}

// TransitionConflict records a transition abandoned after retry exhaustion.
func TransitionConflict() {
	transitionConflictsTotal.Inc()
}

// PublishAttempt records an automatic publication attempt outcome.
func PublishAttempt(outcome string) {
	publishAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SchedulingConflict records one detected scheduling conflict.
func SchedulingConflict() {
	schedulingConflictsTotal.Inc()
}

// SetSessionsByStatus updates the per-status session gauge.
func SetSessionsByStatus(status string, count int) {
	sessionsByStatus.WithLabelValues(status).Set(float64(count))
}

// SchedulerRun records a scheduler sweep outcome.
func SchedulerRun(outcome string) {
	schedulerRunsTotal.WithLabelValues(outcome).Inc()
}

// SchedulerItemFailure records a per-item failure inside a sweep.
func SchedulerItemFailure() {
	schedulerItemFailures.Inc()
}

// ValidationFailure records a validation pass that found blocking errors.
func ValidationFailure() {
	validationFailures.Inc()
}
