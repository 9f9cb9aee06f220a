// SPDX-License-Identifier: MIT

package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*workflow.Session
	log      []workflow.StatusLogEntry

	// failCommits makes the next N commits fail with a version conflict.
	failCommits int
	commits     int
}

func newMockStore(sessions ...*workflow.Session) *mockStore {
	m := &mockStore{sessions: make(map[string]*workflow.Session)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *mockStore) GetSession(ctx context.Context, id string) (*workflow.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &workflow.SessionNotFoundError{SessionID: id}
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) CommitTransition(ctx context.Context, next *workflow.Session, entry *workflow.StatusLogEntry, expectedVersion int64) (*workflow.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.failCommits > 0 {
		m.failCommits--
		return nil, &workflow.ConcurrentModificationError{SessionID: next.ID, Attempts: 1}
	}
	current, ok := m.sessions[next.ID]
	if !ok {
		return nil, &workflow.SessionNotFoundError{SessionID: next.ID}
	}
	if current.Version != expectedVersion {
		return nil, &workflow.ConcurrentModificationError{SessionID: next.ID, Attempts: 1}
	}
	committed := *next
	committed.Version = expectedVersion + 1
	m.sessions[next.ID] = &committed
	m.log = append(m.log, *entry)
	cp := committed
	return &cp, nil
}

func (m *mockStore) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.log)
}

type mockGate struct {
	verdict *workflow.PublishVerdict
	err     error
	calls   int
}

func (g *mockGate) EvaluatePublish(ctx context.Context, s *workflow.Session) (*workflow.PublishVerdict, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if g.verdict != nil {
		return g.verdict, nil
	}
	return &workflow.PublishVerdict{CanPublish: true}, nil
}

type mockScorer struct {
	result workflow.ReadinessResult
}

func (s *mockScorer) Score(*workflow.Session) workflow.ReadinessResult {
	return s.result
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func draftSession(id string) *workflow.Session {
	return &workflow.Session{
		ID:      id,
		Status:  types.StatusDraft,
		Version: 1,
	}
}

func TestEngine_IdempotentNoOp(t *testing.T) {
	store := newMockStore(draftSession("s1"))
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	session, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusDraft,
		Actor:     "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, session.Status)
	assert.Nil(t, session.PublishedAt)
	assert.Equal(t, 0, store.logCount(), "a no-op must not write a log entry")
}

func TestEngine_InvalidTransition(t *testing.T) {
	store := newMockStore(draftSession("s1"))
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	_, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusCompleted,
	})
	var invalid *workflow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, types.StatusDraft, invalid.From)
	assert.Equal(t, types.StatusCompleted, invalid.To)
	assert.Contains(t, invalid.Error(), "draft")
	assert.Contains(t, invalid.Error(), "completed")
	assert.Equal(t, 0, store.logCount())
}

func TestEngine_TerminalStatesRejectEverything(t *testing.T) {
	targets := []types.SessionStatus{
		types.StatusDraft, types.StatusReview, types.StatusReady,
		types.StatusPublished, types.StatusRetired, types.StatusCancelled,
	}
	for _, terminal := range []types.SessionStatus{types.StatusCompleted, types.StatusRetired, types.StatusCancelled} {
		s := draftSession("s1")
		s.Status = terminal
		store := newMockStore(s)
		engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

		for _, target := range targets {
			if target == terminal {
				continue
			}
			_, err := engine.Request(context.Background(), workflow.TransitionRequest{
				SessionID: "s1",
				Target:    target,
			})
			var invalid *workflow.InvalidTransitionError
			assert.ErrorAs(t, err, &invalid, "%s -> %s must be rejected", terminal, target)
		}
		assert.Equal(t, 0, store.logCount())
	}
}

func TestEngine_PublishSetsPublishedAtAndLogs(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore(draftSession("s1"))
	scorer := &mockScorer{result: workflow.ReadinessResult{Percentage: 85, CanPublish: true}}
	engine := workflow.NewEngine(store, &mockGate{}, scorer, workflow.WithClock(fixedClock(now)))

	session, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusPublished,
		Actor:     "alice",
		Remark:    "go live",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPublished, session.Status)
	require.NotNil(t, session.PublishedAt)
	assert.Equal(t, now, *session.PublishedAt)
	assert.Equal(t, 85, session.Readiness)
	assert.Equal(t, int64(2), session.Version)

	require.Equal(t, 1, store.logCount())
	entry := store.log[0]
	assert.Equal(t, "s1", entry.SessionID)
	assert.Equal(t, types.StatusDraft, entry.From)
	assert.Equal(t, types.StatusPublished, entry.To)
	assert.Equal(t, "alice", entry.Actor)
	assert.False(t, entry.Automated)
	assert.Equal(t, "go live", entry.Remark)
	assert.Equal(t, 85, entry.Readiness)
}

func TestEngine_PublishBlockedByGate(t *testing.T) {
	store := newMockStore(draftSession("s1"))
	gate := &mockGate{verdict: &workflow.PublishVerdict{
		Reason: "validation failed with 2 blocking errors",
		Errors: []workflow.ValidationError{
			{Field: "title", Message: "title is required", Severity: types.SeverityError},
			{Field: "starts_at", Message: "start time is required", Severity: types.SeverityError},
			{Field: "headline", Message: "missing optional marketing field headline", Severity: types.SeverityWarning},
		},
	}}
	engine := workflow.NewEngine(store, gate, &mockScorer{})

	_, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusPublished,
	})
	var blocked *workflow.PublishingBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Len(t, blocked.Errors, 2, "only blocking errors are carried")
	assert.Equal(t, 1, gate.calls)
	assert.Equal(t, 0, store.logCount())
}

func TestEngine_RegressionClearsPublishedAt(t *testing.T) {
	published := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	s := draftSession("s1")
	s.Status = types.StatusPublished
	s.PublishedAt = &published
	store := newMockStore(s)
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	session, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusDraft,
		Actor:     "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, session.Status)
	assert.Nil(t, session.PublishedAt)
	assert.Equal(t, 1, store.logCount())
}

func TestEngine_RegressionBlockedByRegistrations(t *testing.T) {
	published := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	s := draftSession("s1")
	s.Status = types.StatusPublished
	s.PublishedAt = &published
	s.RegistrationCount = 3
	store := newMockStore(s)
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	_, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusDraft,
	})
	var invalid *workflow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Error(), "registrations")
	assert.Equal(t, 0, store.logCount())
}

func TestEngine_TerminalTransitionPreservesPublishedAt(t *testing.T) {
	published := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	s := draftSession("s1")
	s.Status = types.StatusPublished
	s.PublishedAt = &published
	store := newMockStore(s)
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	session, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusCompleted,
		Automated: true,
	})
	require.NoError(t, err)
	require.NotNil(t, session.PublishedAt)
	assert.Equal(t, published, *session.PublishedAt)
}

func TestEngine_RetriesOnContention(t *testing.T) {
	store := newMockStore(draftSession("s1"))
	store.failCommits = 2
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	session, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusReview,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusReview, session.Status)
	assert.Equal(t, 3, store.commits)
}

func TestEngine_ContentionExhaustsRetries(t *testing.T) {
	store := newMockStore(draftSession("s1"))
	store.failCommits = 10
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	_, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "s1",
		Target:    types.StatusReview,
	})
	var contended *workflow.ConcurrentModificationError
	require.ErrorAs(t, err, &contended)
	assert.Equal(t, 3, store.commits)
	assert.Equal(t, 0, store.logCount())
}

func TestEngine_UnknownSession(t *testing.T) {
	store := newMockStore()
	engine := workflow.NewEngine(store, &mockGate{}, &mockScorer{})

	_, err := engine.Request(context.Background(), workflow.TransitionRequest{
		SessionID: "missing",
		Target:    types.StatusReview,
	})
	var notFound *workflow.SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.SessionID)
}
