// SPDX-License-Identifier: MIT

// Package scheduler runs the periodic workflow sweep: completing ended
// published sessions, expiring past-due incentives and attempting
// unattended publication of ready sessions.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/metrics"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// runTimeout bounds a single sweep.
const runTimeout = 2 * time.Minute

// Store is the persistence surface of the scheduler.
type Store interface {
	// ListEndedPublished returns published sessions whose end time is at
	// or before now.
	ListEndedPublished(ctx context.Context, now time.Time) ([]workflow.Session, error)

	// ListReadySessions returns sessions in the READY state.
	ListReadySessions(ctx context.Context) ([]workflow.Session, error)

	// ListExpiredIncentives returns active incentives past their end date.
	ListExpiredIncentives(ctx context.Context, now time.Time) ([]workflow.Incentive, error)

	// ExpireIncentive marks an incentive expired.
	ExpireIncentive(ctx context.Context, id string, now time.Time) error
}

// Engine is the transition surface for automated completions.
type Engine interface {
	Request(ctx context.Context, req workflow.TransitionRequest) (*workflow.Session, error)
}

// Publisher attempts unattended publication of a ready session.
type Publisher interface {
	AttemptAutomaticPublication(ctx context.Context, sessionID string) (bool, error)
}

// Auditor receives a notification for every incentive the sweep expires.
type Auditor interface {
	IncentiveExpired(incentiveID, name string)
}

// Worker manages the periodic workflow sweep. Overlapping runs are
// prevented by an atomic busy flag; a tick arriving while a sweep is in
// flight is skipped.
type Worker struct {
	store     Store
	engine    Engine
	publisher Publisher
	auditor   Auditor
	cadence   time.Duration
	busy      atomic.Bool
	now       func() time.Time
	logger    zerolog.Logger
}

// NewWorker creates a scheduler worker.
func NewWorker(store Store, engine Engine, publisher Publisher, cadence time.Duration) *Worker {
	return &Worker{
		store:     store,
		engine:    engine,
		publisher: publisher,
		cadence:   cadence,
		now:       time.Now,
		logger:    log.WithComponent("scheduler"),
	}
}

// WithClock overrides the worker's time source.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// WithAuditor attaches an audit hook for expired incentives.
func (w *Worker) WithAuditor(a Auditor) *Worker {
	w.auditor = a
	return w
}

// Start begins the sweep loop. It blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cadence)
	defer ticker.Stop()

	// Initial run directly
	w.TryRun(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.TryRun(ctx)
		}
	}
}

// TryRun executes a sweep unless one is already in flight.
func (w *Worker) TryRun(ctx context.Context) {
	if !w.busy.CompareAndSwap(false, true) {
		metrics.SchedulerRun("skipped")
		return
	}
	defer w.busy.Store(false)

	w.runOnce(ctx)
}

// runOnce executes the three sweep duties. A failure on one item never
// stops processing of the remaining items.
func (w *Worker) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	now := w.now().UTC()
	completed, published, expired, failures := 0, 0, 0, 0

	// (a) Published sessions past their end time move to COMPLETED.
	ended, err := w.store.ListEndedPublished(ctx, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list ended published sessions")
		failures++
	}
	for _, s := range ended {
		_, err := w.engine.Request(ctx, workflow.TransitionRequest{
			SessionID: s.ID,
			Target:    types.StatusCompleted,
			Automated: true,
			Remark:    "Session end time passed",
		})
		if err != nil {
			failures++
			metrics.SchedulerItemFailure()
			w.logger.Error().
				Err(err).
				Str("session_id", s.ID).
				Msg("failed to complete ended session")
			continue
		}
		completed++
	}

	// (b) Active incentives past their end date expire.
	incentives, err := w.store.ListExpiredIncentives(ctx, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list expired incentives")
		failures++
	}
	for _, inc := range incentives {
		if err := w.store.ExpireIncentive(ctx, inc.ID, now); err != nil {
			failures++
			metrics.SchedulerItemFailure()
			w.logger.Error().
				Err(err).
				Str("incentive_id", inc.ID).
				Msg("failed to expire incentive")
			continue
		}
		expired++
		if w.auditor != nil {
			w.auditor.IncentiveExpired(inc.ID, inc.Name)
		}
		w.logger.Info().
			Str("incentive_id", inc.ID).
			Str("name", inc.Name).
			Msg("incentive expired")
	}

	// (c) Ready sessions meeting every publishing rule go live.
	if w.publisher != nil {
		ready, err := w.store.ListReadySessions(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to list ready sessions")
			failures++
		}
		for _, s := range ready {
			ok, err := w.publisher.AttemptAutomaticPublication(ctx, s.ID)
			if err != nil {
				failures++
				metrics.SchedulerItemFailure()
				w.logger.Error().
					Err(err).
					Str("session_id", s.ID).
					Msg("automatic publication attempt failed")
				continue
			}
			if ok {
				published++
			}
		}
	}

	outcome := "success"
	if failures > 0 {
		outcome = "partial"
	}
	metrics.SchedulerRun(outcome)

	w.logger.Info().
		Int("completed", completed).
		Int("published", published).
		Int("incentives_expired", expired).
		Int("failures", failures).
		Msg("scheduler sweep finished")
}
