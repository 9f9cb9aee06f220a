// SPDX-License-Identifier: MIT

// Package publishing composes validation, conflict detection and the
// scheduling rules into a single publish verdict, and drives both manual
// and unattended publication.
package publishing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/conflict"
	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/metrics"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/validation"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// AutoPublishRemark is the standard remark written on automatic
// publications.
const AutoPublishRemark = "Automatically published after meeting all publishing requirements"

// Store is the persistence surface of the orchestrator.
type Store interface {
	GetSession(ctx context.Context, id string) (*workflow.Session, error)

	// ListSessionsByIDs loads the named sessions in one query. Unknown
	// ids are simply absent from the result.
	ListSessionsByIDs(ctx context.Context, ids []string) ([]workflow.Session, error)

	// ListPublishedInWindow returns every published session whose
	// [starts_at, ends_at) interval intersects [from, to).
	ListPublishedInWindow(ctx context.Context, from, to time.Time) ([]workflow.Session, error)
}

// Engine is the transition surface used for automatic publication.
type Engine interface {
	Request(ctx context.Context, req workflow.TransitionRequest) (*workflow.Session, error)
}

// AttemptRecorder receives automation outcomes for the workflow monitor.
type AttemptRecorder interface {
	RecordPublishAttempt(outcome string)
	RecordConflict()
}

// nopRecorder discards outcomes when no recorder is wired.
type nopRecorder struct{}

func (nopRecorder) RecordPublishAttempt(string) {}
func (nopRecorder) RecordConflict()             {}

// Orchestrator implements the publishing rules and the workflow.PublishGate
// contract.
type Orchestrator struct {
	store     Store
	validator *validation.Validator
	detector  *conflict.Detector
	engine    Engine
	recorder  AttemptRecorder
	cfg       config.Workflow
	now       func() time.Time
	logger    zerolog.Logger
}

// NewOrchestrator creates a publishing orchestrator. The engine is wired
// afterwards via SetEngine, since the engine in turn needs the
// orchestrator as its publish gate.
func NewOrchestrator(store Store, validator *validation.Validator, detector *conflict.Detector, cfg config.Workflow) *Orchestrator {
	return &Orchestrator{
		store:     store,
		validator: validator,
		detector:  detector,
		recorder:  nopRecorder{},
		cfg:       cfg,
		now:       time.Now,
		logger:    log.WithComponent("publishing"),
	}
}

// SetEngine wires the transition engine for automatic publication.
func (o *Orchestrator) SetEngine(e Engine) {
	o.engine = e
}

// SetRecorder wires the monitor's outcome recorder.
func (o *Orchestrator) SetRecorder(r AttemptRecorder) {
	o.recorder = r
}

// WithClock overrides the orchestrator's time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// ValidatePublishingRules loads a session and evaluates every publishing
// rule against it.
func (o *Orchestrator) ValidatePublishingRules(ctx context.Context, sessionID string) (*workflow.PublishVerdict, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return o.EvaluatePublish(ctx, session)
}

// EvaluatePublish implements workflow.PublishGate.
func (o *Orchestrator) EvaluatePublish(ctx context.Context, s *workflow.Session) (*workflow.PublishVerdict, error) {
	res := o.validator.ValidateForPublish(ctx, s)
	if !res.Valid() {
		return &workflow.PublishVerdict{
			Reason: fmt.Sprintf("validation failed with %d blocking errors", len(res.Errors)),
			Errors: res.Errors,
		}, nil
	}

	now := o.now()

	// Lead time, re-checked explicitly on top of the validator.
	if s.StartsAt.Before(now.Add(o.cfg.PublishLeadTime)) {
		return &workflow.PublishVerdict{
			Reason: fmt.Sprintf("start time is less than %s away", o.cfg.PublishLeadTime),
		}, nil
	}

	conflicts, err := o.detector.FindConflicts(ctx, s)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.SchedulingConflict()
		o.recorder.RecordConflict()
		return &workflow.PublishVerdict{
			Reason:    "Scheduling conflict",
			Conflicts: conflict.Refs(conflicts),
		}, nil
	}

	if !o.withinBusinessHours(s.StartsAt) {
		return &workflow.PublishVerdict{
			Reason: fmt.Sprintf("start time is outside the %02d:00-%02d:00 business hours window",
				o.cfg.BusinessHoursStart, o.cfg.BusinessHoursEnd),
		}, nil
	}

	return &workflow.PublishVerdict{CanPublish: true}, nil
}

// ValidateMultipleSessions evaluates the publishing rules for a batch of
// sessions using one query for the candidates and one for all potential
// conflicts, rather than looping against the store per id.
func (o *Orchestrator) ValidateMultipleSessions(ctx context.Context, sessionIDs []string) (map[string]*workflow.PublishVerdict, error) {
	verdicts := make(map[string]*workflow.PublishVerdict, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return verdicts, nil
	}

	candidates, err := o.store.ListSessionsByIDs(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*workflow.Session, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	// Single conflict query spanning every candidate's window.
	var windowFrom, windowTo time.Time
	for _, c := range candidates {
		if c.StartsAt.IsZero() || c.EndsAt.IsZero() {
			continue
		}
		if windowFrom.IsZero() || c.StartsAt.Before(windowFrom) {
			windowFrom = c.StartsAt
		}
		if windowTo.IsZero() || c.EndsAt.After(windowTo) {
			windowTo = c.EndsAt
		}
	}
	var published []workflow.Session
	if !windowFrom.IsZero() {
		published, err = o.store.ListPublishedInWindow(ctx, windowFrom, windowTo)
		if err != nil {
			return nil, err
		}
	}

	now := o.now()
	for _, id := range sessionIDs {
		s, ok := byID[id]
		if !ok {
			verdicts[id] = &workflow.PublishVerdict{Reason: "session not found"}
			continue
		}
		verdicts[id] = o.evaluateAgainst(ctx, s, published, now)
	}
	return verdicts, nil
}

// evaluateAgainst mirrors EvaluatePublish with conflicts resolved against
// a preloaded set of published sessions.
func (o *Orchestrator) evaluateAgainst(ctx context.Context, s *workflow.Session, published []workflow.Session, now time.Time) *workflow.PublishVerdict {
	res := o.validator.ValidateForPublish(ctx, s)
	if !res.Valid() {
		return &workflow.PublishVerdict{
			Reason: fmt.Sprintf("validation failed with %d blocking errors", len(res.Errors)),
			Errors: res.Errors,
		}
	}
	if s.StartsAt.Before(now.Add(o.cfg.PublishLeadTime)) {
		return &workflow.PublishVerdict{
			Reason: fmt.Sprintf("start time is less than %s away", o.cfg.PublishLeadTime),
		}
	}

	var conflicts []workflow.Session
	for _, p := range published {
		if p.ID == s.ID {
			continue
		}
		sameResource := (s.LocationID != "" && p.LocationID == s.LocationID) ||
			(s.TrainerID != "" && p.TrainerID == s.TrainerID)
		if !sameResource {
			continue
		}
		if s.StartsAt.Before(p.EndsAt) && p.StartsAt.Before(s.EndsAt) {
			conflicts = append(conflicts, p)
		}
	}
	if len(conflicts) > 0 {
		metrics.SchedulingConflict()
		o.recorder.RecordConflict()
		return &workflow.PublishVerdict{
			Reason:    "Scheduling conflict",
			Conflicts: conflict.Refs(conflicts),
		}
	}

	if !o.withinBusinessHours(s.StartsAt) {
		return &workflow.PublishVerdict{
			Reason: fmt.Sprintf("start time is outside the %02d:00-%02d:00 business hours window",
				o.cfg.BusinessHoursStart, o.cfg.BusinessHoursEnd),
		}
	}
	return &workflow.PublishVerdict{CanPublish: true}
}

// AttemptAutomaticPublication publishes the session if every rule passes.
// A "not ready" verdict is an expected, silent outcome; only
// infrastructure failures are returned as errors.
func (o *Orchestrator) AttemptAutomaticPublication(ctx context.Context, sessionID string) (bool, error) {
	verdict, err := o.ValidatePublishingRules(ctx, sessionID)
	if err != nil {
		var notFound *workflow.SessionNotFoundError
		if errors.As(err, &notFound) {
			metrics.PublishAttempt("not_ready")
			o.recorder.RecordPublishAttempt("not_ready")
			return false, nil
		}
		metrics.PublishAttempt("error")
		o.recorder.RecordPublishAttempt("error")
		return false, err
	}
	if !verdict.CanPublish {
		metrics.PublishAttempt("not_ready")
		o.recorder.RecordPublishAttempt("not_ready")
		o.logger.Debug().
			Str("session_id", sessionID).
			Str("reason", verdict.Reason).
			Msg("automatic publication skipped")
		return false, nil
	}

	_, err = o.engine.Request(ctx, workflow.TransitionRequest{
		SessionID: sessionID,
		Target:    types.StatusPublished,
		Automated: true,
		Remark:    AutoPublishRemark,
	})
	if err != nil {
		// A business rejection here means the state changed between the
		// verdict and the transition; treat it like a not-ready outcome.
		var invalid *workflow.InvalidTransitionError
		var blocked *workflow.PublishingBlockedError
		if errors.As(err, &invalid) || errors.As(err, &blocked) {
			metrics.PublishAttempt("not_ready")
			o.recorder.RecordPublishAttempt("not_ready")
			o.logger.Debug().
				Str("session_id", sessionID).
				Err(err).
				Msg("automatic publication lost the race")
			return false, nil
		}
		metrics.PublishAttempt("error")
		o.recorder.RecordPublishAttempt("error")
		return false, err
	}

	metrics.PublishAttempt("published")
	o.recorder.RecordPublishAttempt("published")
	o.logger.Info().Str("session_id", sessionID).Msg("session published automatically")
	return true, nil
}

func (o *Orchestrator) withinBusinessHours(start time.Time) bool {
	hour := start.Hour()
	return hour >= o.cfg.BusinessHoursStart && hour < o.cfg.BusinessHoursEnd
}
