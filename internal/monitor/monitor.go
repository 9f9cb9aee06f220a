// SPDX-License-Identifier: MIT

// Package monitor aggregates workflow state for dashboards and applies
// threshold rules to raise health alerts.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/metrics"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// Health statuses returned by PerformHealthCheck.
const (
	HealthOK       = "ok"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Store is the persistence surface of the monitor.
type Store interface {
	CountSessionsByStatus(ctx context.Context) (map[types.SessionStatus]int, error)

	// ListStatusLogSince returns every log entry created at or after the
	// given instant, ordered by session then time.
	ListStatusLogSince(ctx context.Context, since time.Time) ([]workflow.StatusLogEntry, error)
}

// WorkflowMetrics is the aggregate snapshot served to dashboards.
type WorkflowMetrics struct {
	TotalSessions        int                                   `json:"total_sessions"`
	SessionsByStatus     map[types.SessionStatus]int           `json:"sessions_by_status"`
	AutomatedTransitions int                                   `json:"automated_transitions"`
	ManualTransitions    int                                   `json:"manual_transitions"`
	FailedAutomations    int64                                 `json:"failed_automations"`
	PublishAttempts      int64                                 `json:"publish_attempts"`
	PublishSuccesses     int64                                 `json:"publish_successes"`
	PublishSuccessRate   float64                               `json:"publish_success_rate"`
	ConflictsDetected    int64                                 `json:"conflicts_detected"`
	AverageTimeInState   map[types.SessionStatus]time.Duration `json:"average_time_in_state"`
	Window               time.Duration                         `json:"window"`
	CollectedAt          time.Time                             `json:"collected_at"`
}

// HealthReport is the outcome of a health check pass.
type HealthReport struct {
	Status    string    `json:"status"`
	Alerts    []string  `json:"alerts,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor aggregates workflow metrics over a trailing window.
type Monitor struct {
	store    Store
	recorder *Recorder
	window   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMonitor creates a monitor with the given trailing window.
func NewMonitor(store Store, recorder *Recorder, window time.Duration) *Monitor {
	return &Monitor{
		store:    store,
		recorder: recorder,
		window:   window,
		now:      time.Now,
		logger:   log.WithComponent("monitor"),
	}
}

// WithClock overrides the monitor's time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// CollectWorkflowMetrics aggregates the current workflow state. It also
// refreshes the per-status prometheus gauges.
func (m *Monitor) CollectWorkflowMetrics(ctx context.Context) (*WorkflowMetrics, error) {
	now := m.now().UTC()

	counts, err := m.store.CountSessionsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	total := 0
	for status, n := range counts {
		total += n
		metrics.SetSessionsByStatus(status.String(), n)
	}

	entries, err := m.store.ListStatusLogSince(ctx, now.Add(-m.window))
	if err != nil {
		return nil, fmt.Errorf("list status log: %w", err)
	}

	automated, manual := 0, 0
	for _, e := range entries {
		if e.Automated {
			automated++
		} else {
			manual++
		}
	}

	snap := m.recorder.Snapshot()
	rate := 1.0
	if snap.PublishAttempts > 0 {
		rate = float64(snap.PublishSuccesses) / float64(snap.PublishAttempts)
	}

	return &WorkflowMetrics{
		TotalSessions:        total,
		SessionsByStatus:     counts,
		AutomatedTransitions: automated,
		ManualTransitions:    manual,
		FailedAutomations:    snap.PublishFailures,
		PublishAttempts:      snap.PublishAttempts,
		PublishSuccesses:     snap.PublishSuccesses,
		PublishSuccessRate:   rate,
		ConflictsDetected:    snap.ConflictsDetected,
		AverageTimeInState:   averageTimeInState(entries),
		Window:               m.window,
		CollectedAt:          now,
	}, nil
}

// PerformHealthCheck applies the threshold rules to the current metrics.
func (m *Monitor) PerformHealthCheck(ctx context.Context) (*HealthReport, error) {
	wm, err := m.CollectWorkflowMetrics(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{Status: HealthOK, CheckedAt: wm.CollectedAt}
	warn := func(msg string) {
		report.Alerts = append(report.Alerts, msg)
		if report.Status == HealthOK {
			report.Status = HealthWarning
		}
	}
	critical := func(msg string) {
		report.Alerts = append(report.Alerts, msg)
		report.Status = HealthCritical
	}

	if wm.PublishAttempts > 0 {
		failFraction := float64(wm.FailedAutomations) / float64(wm.PublishAttempts)
		switch {
		case failFraction > 0.5:
			critical(fmt.Sprintf("automation failure rate %.0f%% exceeds 50%%", failFraction*100))
		case failFraction > 0.25:
			warn(fmt.Sprintf("automation failure rate %.0f%% exceeds 25%%", failFraction*100))
		}
		if wm.PublishSuccessRate < 0.8 {
			warn(fmt.Sprintf("publication success rate %.0f%% is below 80%%", wm.PublishSuccessRate*100))
		}
	}

	if wm.TotalSessions > 0 {
		drafts := wm.SessionsByStatus[types.StatusDraft]
		if float64(drafts) > float64(wm.TotalSessions)*0.5 {
			warn(fmt.Sprintf("draft backlog: %d of %d sessions are drafts", drafts, wm.TotalSessions))
		}
	}

	if report.Status != HealthOK {
		m.logger.Warn().
			Str("status", report.Status).
			Strs("alerts", report.Alerts).
			Msg("workflow health degraded")
	}
	return report, nil
}

// averageTimeInState derives per-state dwell times from consecutive log
// entries of the same session. An entry records the instant a session
// entered its To state; the next entry for that session closes the span.
func averageTimeInState(entries []workflow.StatusLogEntry) map[types.SessionStatus]time.Duration {
	bySession := make(map[string][]workflow.StatusLogEntry)
	for _, e := range entries {
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}

	totals := make(map[types.SessionStatus]time.Duration)
	counts := make(map[types.SessionStatus]int)
	for _, seq := range bySession {
		sort.Slice(seq, func(i, j int) bool { return seq[i].CreatedAt.Before(seq[j].CreatedAt) })
		for i := 0; i+1 < len(seq); i++ {
			state := seq[i].To
			totals[state] += seq[i+1].CreatedAt.Sub(seq[i].CreatedAt)
			counts[state]++
		}
	}

	out := make(map[types.SessionStatus]time.Duration, len(totals))
	for state, total := range totals {
		out[state] = total / time.Duration(counts[state])
	}
	return out
}
