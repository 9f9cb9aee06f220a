// SPDX-License-Identifier: MIT

package publishing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/conflict"
	"github.com/trainhub/sessionflow/internal/publishing"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/validation"
	"github.com/trainhub/sessionflow/internal/workflow"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

type publishStore struct {
	sessions  map[string]*workflow.Session
	published []workflow.Session

	byIDsCalls  int
	windowCalls int
	overlaps    []workflow.Session
	overlapErr  error
}

func (m *publishStore) GetSession(ctx context.Context, id string) (*workflow.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, &workflow.SessionNotFoundError{SessionID: id}
	}
	cp := *s
	return &cp, nil
}

func (m *publishStore) ListSessionsByIDs(ctx context.Context, ids []string) ([]workflow.Session, error) {
	m.byIDsCalls++
	var out []workflow.Session
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *publishStore) ListPublishedInWindow(ctx context.Context, from, to time.Time) ([]workflow.Session, error) {
	m.windowCalls++
	return m.published, nil
}

func (m *publishStore) FindPublishedOverlapping(ctx context.Context, s *workflow.Session) ([]workflow.Session, error) {
	return m.overlaps, m.overlapErr
}

type stubEngine struct {
	req   workflow.TransitionRequest
	err   error
	calls int
}

func (e *stubEngine) Request(ctx context.Context, req workflow.TransitionRequest) (*workflow.Session, error) {
	e.calls++
	e.req = req
	if e.err != nil {
		return nil, e.err
	}
	return &workflow.Session{ID: req.SessionID, Status: req.Target}, nil
}

type countingRecorder struct {
	attempts  map[string]int
	conflicts int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{attempts: make(map[string]int)}
}

func (r *countingRecorder) RecordPublishAttempt(outcome string) { r.attempts[outcome]++ }
func (r *countingRecorder) RecordConflict()                     { r.conflicts++ }

func readySession(id string) *workflow.Session {
	start := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)
	return &workflow.Session{
		ID:         id,
		Status:     types.StatusReady,
		Title:      "Go Fundamentals",
		Objective:  "Learn the basics of Go",
		StartsAt:   start,
		EndsAt:     start.Add(2 * time.Hour),
		LocationID: "l1",
		TrainerID:  "t1",
	}
}

func newOrchestrator(store *publishStore) (*publishing.Orchestrator, *countingRecorder) {
	cfg := config.DefaultWorkflow()
	clock := func() time.Time { return testNow }
	validator := validation.NewValidator(cfg, nil).WithClock(clock)
	detector := conflict.NewDetector(store)
	o := publishing.NewOrchestrator(store, validator, detector, cfg).WithClock(clock)
	rec := newCountingRecorder()
	o.SetRecorder(rec)
	return o, rec
}

func TestOrchestrator_ReadySessionPasses(t *testing.T) {
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": readySession("s1")}}
	o, _ := newOrchestrator(store)

	verdict, err := o.ValidatePublishingRules(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, verdict.CanPublish)
	assert.Empty(t, verdict.Errors)
	assert.Empty(t, verdict.Conflicts)
}

func TestOrchestrator_ValidationErrorsBlock(t *testing.T) {
	s := readySession("s1")
	s.Title = ""
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": s}}
	o, _ := newOrchestrator(store)

	verdict, err := o.ValidatePublishingRules(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
	assert.Contains(t, verdict.Reason, "validation failed")
	require.NotEmpty(t, verdict.Errors)
	assert.Equal(t, "title", verdict.Errors[0].Field)
}

func TestOrchestrator_LeadTimeBlocks(t *testing.T) {
	s := readySession("s1")
	s.StartsAt = testNow.Add(time.Hour)
	s.EndsAt = s.StartsAt.Add(2 * time.Hour)
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": s}}
	o, _ := newOrchestrator(store)

	verdict, err := o.ValidatePublishingRules(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
}

func TestOrchestrator_SchedulingConflictBlocks(t *testing.T) {
	s := readySession("s1")
	other := *readySession("other")
	other.Status = types.StatusPublished
	store := &publishStore{
		sessions: map[string]*workflow.Session{"s1": s},
		overlaps: []workflow.Session{other},
	}
	o, rec := newOrchestrator(store)

	verdict, err := o.ValidatePublishingRules(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
	assert.Equal(t, "Scheduling conflict", verdict.Reason)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, "other", verdict.Conflicts[0].SessionID)
	assert.Equal(t, 1, rec.conflicts)
}

func TestOrchestrator_BusinessHoursBlock(t *testing.T) {
	s := readySession("s1")
	s.StartsAt = time.Date(2026, 9, 3, 23, 0, 0, 0, time.UTC)
	s.EndsAt = s.StartsAt.Add(2 * time.Hour)
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": s}}
	o, _ := newOrchestrator(store)

	verdict, err := o.ValidatePublishingRules(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, verdict.CanPublish)
	assert.Contains(t, verdict.Reason, "business hours")
	assert.Empty(t, verdict.Errors, "a warning-only start time is not a validation error")
}

func TestOrchestrator_ValidateMultipleSessions(t *testing.T) {
	clean := readySession("clean")
	clashing := readySession("clashing")
	clashing.LocationID = "l2"

	occupied := *readySession("occupied")
	occupied.Status = types.StatusPublished
	occupied.LocationID = "l2"
	occupied.TrainerID = "t2"

	store := &publishStore{
		sessions: map[string]*workflow.Session{
			"clean":    clean,
			"clashing": clashing,
		},
		published: []workflow.Session{occupied},
	}
	o, _ := newOrchestrator(store)

	verdicts, err := o.ValidateMultipleSessions(context.Background(), []string{"clean", "clashing", "ghost"})
	require.NoError(t, err)
	require.Len(t, verdicts, 3)

	assert.True(t, verdicts["clean"].CanPublish)

	assert.False(t, verdicts["clashing"].CanPublish)
	require.Len(t, verdicts["clashing"].Conflicts, 1)
	assert.Equal(t, "occupied", verdicts["clashing"].Conflicts[0].SessionID)

	assert.False(t, verdicts["ghost"].CanPublish)
	assert.Equal(t, "session not found", verdicts["ghost"].Reason)

	// The batch path loads candidates and conflicts in one query each.
	assert.Equal(t, 1, store.byIDsCalls)
	assert.Equal(t, 1, store.windowCalls)
}

func TestOrchestrator_ValidateMultipleSessionsEmpty(t *testing.T) {
	store := &publishStore{sessions: map[string]*workflow.Session{}}
	o, _ := newOrchestrator(store)

	verdicts, err := o.ValidateMultipleSessions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, verdicts)
	assert.Equal(t, 0, store.byIDsCalls)
}

func TestOrchestrator_AutoPublishSuccess(t *testing.T) {
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": readySession("s1")}}
	o, rec := newOrchestrator(store)
	engine := &stubEngine{}
	o.SetEngine(engine)

	published, err := o.AttemptAutomaticPublication(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, types.StatusPublished, engine.req.Target)
	assert.True(t, engine.req.Automated)
	assert.Equal(t, publishing.AutoPublishRemark, engine.req.Remark)
	assert.Equal(t, 1, rec.attempts["published"])
}

func TestOrchestrator_AutoPublishNotReadyIsSilent(t *testing.T) {
	s := readySession("s1")
	s.Title = ""
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": s}}
	o, rec := newOrchestrator(store)
	engine := &stubEngine{}
	o.SetEngine(engine)

	published, err := o.AttemptAutomaticPublication(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, published)
	assert.Equal(t, 0, engine.calls, "an unready session never reaches the engine")
	assert.Equal(t, 1, rec.attempts["not_ready"])
}

func TestOrchestrator_AutoPublishMissingSessionIsSilent(t *testing.T) {
	store := &publishStore{sessions: map[string]*workflow.Session{}}
	o, rec := newOrchestrator(store)
	o.SetEngine(&stubEngine{})

	published, err := o.AttemptAutomaticPublication(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, published)
	assert.Equal(t, 1, rec.attempts["not_ready"])
}

func TestOrchestrator_AutoPublishLostRaceIsSilent(t *testing.T) {
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": readySession("s1")}}
	o, rec := newOrchestrator(store)
	engine := &stubEngine{err: &workflow.InvalidTransitionError{
		From: types.StatusCancelled, To: types.StatusPublished,
	}}
	o.SetEngine(engine)

	published, err := o.AttemptAutomaticPublication(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, published)
	assert.Equal(t, 1, rec.attempts["not_ready"])
}

func TestOrchestrator_AutoPublishInfrastructureError(t *testing.T) {
	store := &publishStore{sessions: map[string]*workflow.Session{"s1": readySession("s1")}}
	o, rec := newOrchestrator(store)
	engine := &stubEngine{err: errors.New("database is locked")}
	o.SetEngine(engine)

	published, err := o.AttemptAutomaticPublication(context.Background(), "s1")
	require.Error(t, err)
	assert.False(t, published)
	assert.Equal(t, 1, rec.attempts["error"])
}
