// SPDX-License-Identifier: MIT

package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/metrics"
	"github.com/trainhub/sessionflow/internal/types"
)

// maxCommitAttempts bounds the retry budget for contended session rows.
const maxCommitAttempts = 3

// Store is the persistence contract of the transition engine. The commit
// must apply the session mutation and the log insert as one atomic unit.
type Store interface {
	// GetSession loads a session with its accepted content kinds and
	// registration count. Returns *SessionNotFoundError for unknown ids.
	GetSession(ctx context.Context, id string) (*Session, error)

	// CommitTransition persists the mutated session and appends the log
	// entry in a single transaction, guarded by the expected version.
	// Returns *ConcurrentModificationError when the version check fails
	// or the row is locked.
	CommitTransition(ctx context.Context, next *Session, entry *StatusLogEntry, expectedVersion int64) (*Session, error)
}

// PublishGate delivers the publishing verdict for transitions into the
// PUBLISHED state. The orchestrator implements it.
type PublishGate interface {
	EvaluatePublish(ctx context.Context, s *Session) (*PublishVerdict, error)
}

// Scorer computes the readiness snapshot recorded with every transition.
type Scorer interface {
	Score(s *Session) ReadinessResult
}

// TransitionRequest describes a requested status change.
type TransitionRequest struct {
	SessionID string
	Target    types.SessionStatus
	Actor     string
	Automated bool
	Remark    string
}

// Auditor receives a notification after a transition has been durably
// committed. Implementations must not block.
type Auditor interface {
	TransitionCommitted(entry *StatusLogEntry)
}

// Engine owns the session lifecycle state machine. It is the only
// component allowed to change a session's status or published timestamp.
type Engine struct {
	store   Store
	gate    PublishGate
	scorer  Scorer
	auditor Auditor
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAuditor attaches a post-commit audit hook.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// NewEngine creates a transition engine. The gate may be nil, in which
// case transitions to PUBLISHED are rejected outright.
func NewEngine(store Store, gate PublishGate, scorer Scorer, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		gate:   gate,
		scorer: scorer,
		now:    time.Now,
		logger: log.WithComponent("workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPublishGate wires the publishing gate after construction. The
// orchestrator depends on the engine for automatic publication, so the
// two are linked in a second wiring step.
func (e *Engine) SetPublishGate(gate PublishGate) {
	e.gate = gate
}

// Request validates and applies a status transition.
//
// Requesting the session's current status is an idempotent no-op: it
// succeeds, writes no log entry and leaves PublishedAt untouched.
// Business-rule rejections (InvalidTransitionError, PublishingBlockedError)
// are deterministic and never retried; version conflicts are retried a
// bounded number of times with jittered backoff before surfacing as
// ConcurrentModificationError.
func (e *Engine) Request(ctx context.Context, req TransitionRequest) (*Session, error) {
	if !req.Target.IsValid() {
		return nil, &InvalidTransitionError{To: req.Target, Reason: "unknown target status"}
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		if attempt > 0 {
			if err := e.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		session, err := e.store.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}

		if session.Status == req.Target {
			return session, nil
		}

		updated, err := e.apply(ctx, session, req)
		var conflict *ConcurrentModificationError
		if errors.As(err, &conflict) {
			lastErr = err
			e.logger.Warn().
				Str("session_id", req.SessionID).
				Int("attempt", attempt+1).
				Msg("transition commit contended, retrying")
			continue
		}
		return updated, err
	}

	metrics.TransitionConflict()
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &ConcurrentModificationError{SessionID: req.SessionID, Attempts: maxCommitAttempts}
}

// apply runs a single transition attempt against a loaded session.
func (e *Engine) apply(ctx context.Context, session *Session, req TransitionRequest) (*Session, error) {
	from := session.Status

	if !from.CanTransitionTo(req.Target) {
		return nil, &InvalidTransitionError{From: from, To: req.Target}
	}

	if from == types.StatusPublished && req.Target == types.StatusDraft && session.RegistrationCount > 0 {
		return nil, &InvalidTransitionError{
			From:   from,
			To:     req.Target,
			Reason: fmt.Sprintf("%d registrations already recorded", session.RegistrationCount),
		}
	}

	if req.Target == types.StatusPublished {
		if e.gate == nil {
			return nil, &PublishingBlockedError{Reason: "no publishing gate configured"}
		}
		verdict, err := e.gate.EvaluatePublish(ctx, session)
		if err != nil {
			return nil, fmt.Errorf("publishing gate: %w", err)
		}
		if !verdict.CanPublish {
			return nil, &PublishingBlockedError{
				Reason:    verdict.Reason,
				Errors:    blockingOnly(verdict.Errors),
				Conflicts: verdict.Conflicts,
			}
		}
	}

	now := e.now().UTC()
	next := *session
	next.Status = req.Target
	next.UpdatedAt = now

	switch {
	case req.Target == types.StatusPublished:
		ts := now
		next.PublishedAt = &ts
	case from == types.StatusPublished && req.Target == types.StatusDraft:
		next.PublishedAt = nil
	}

	snapshot := e.scorer.Score(&next)
	next.Readiness = snapshot.Percentage

	entry := &StatusLogEntry{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		From:      from,
		To:        req.Target,
		Actor:     req.Actor,
		Automated: req.Automated,
		Remark:    req.Remark,
		Readiness: snapshot.Percentage,
		Snapshot:  snapshot,
		CreatedAt: now,
	}

	updated, err := e.store.CommitTransition(ctx, &next, entry, session.Version)
	if err != nil {
		return nil, err
	}

	metrics.TransitionApplied(from.String(), req.Target.String(), req.Automated)
	e.logger.Info().
		Str("session_id", session.ID).
		Str("from", from.String()).
		Str("to", req.Target.String()).
		Bool("automated", req.Automated).
		Int("readiness", snapshot.Percentage).
		Msg("session transitioned")

	if e.auditor != nil {
		e.auditor.TransitionCommitted(entry)
	}
	return updated, nil
}

// backoff sleeps for a jittered quadratic interval before a retry.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	base := time.Duration(attempt*attempt*100) * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
	select {
	case <-time.After(base + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func blockingOnly(all []ValidationError) []ValidationError {
	var out []ValidationError
	for _, v := range all {
		if v.Severity == types.SeverityError {
			out = append(out, v)
		}
	}
	return out
}
