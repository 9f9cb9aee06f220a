// SPDX-License-Identifier: MIT

package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainhub/sessionflow/internal/scheduler"
	"github.com/trainhub/sessionflow/internal/types"
	"github.com/trainhub/sessionflow/internal/workflow"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

type sweepStore struct {
	mu sync.Mutex

	ended      []workflow.Session
	ready      []workflow.Session
	incentives []workflow.Incentive

	listEndedCalls int
	expiredIDs     []string
	expireErr      map[string]error
}

func (m *sweepStore) ListEndedPublished(ctx context.Context, now time.Time) ([]workflow.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listEndedCalls++
	return m.ended, nil
}

func (m *sweepStore) ListReadySessions(ctx context.Context) ([]workflow.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready, nil
}

func (m *sweepStore) ListExpiredIncentives(ctx context.Context, now time.Time) ([]workflow.Incentive, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incentives, nil
}

func (m *sweepStore) ExpireIncentive(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.expireErr[id]; err != nil {
		return err
	}
	m.expiredIDs = append(m.expiredIDs, id)
	return nil
}

type sweepEngine struct {
	mu       sync.Mutex
	requests []workflow.TransitionRequest
	failFor  map[string]error
}

func (e *sweepEngine) Request(ctx context.Context, req workflow.TransitionRequest) (*workflow.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if err := e.failFor[req.SessionID]; err != nil {
		return nil, err
	}
	return &workflow.Session{ID: req.SessionID, Status: req.Target}, nil
}

type sweepPublisher struct {
	mu        sync.Mutex
	attempted []string
	publish   map[string]bool
	errFor    map[string]error

	// entered/release let a test hold a sweep open.
	entered chan struct{}
	release chan struct{}
}

func (p *sweepPublisher) AttemptAutomaticPublication(ctx context.Context, sessionID string) (bool, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempted = append(p.attempted, sessionID)
	if err := p.errFor[sessionID]; err != nil {
		return false, err
	}
	return p.publish[sessionID], nil
}

func TestWorker_CompletesEndedSessions(t *testing.T) {
	store := &sweepStore{
		ended: []workflow.Session{
			{ID: "a", Status: types.StatusPublished},
			{ID: "b", Status: types.StatusPublished},
		},
	}
	engine := &sweepEngine{}
	w := scheduler.NewWorker(store, engine, nil, time.Minute).
		WithClock(func() time.Time { return testNow })

	w.TryRun(context.Background())

	require.Len(t, engine.requests, 2)
	for _, req := range engine.requests {
		assert.Equal(t, types.StatusCompleted, req.Target)
		assert.True(t, req.Automated)
		assert.Equal(t, "Session end time passed", req.Remark)
	}
}

func TestWorker_ItemFailureDoesNotStopSweep(t *testing.T) {
	store := &sweepStore{
		ended: []workflow.Session{
			{ID: "a", Status: types.StatusPublished},
			{ID: "b", Status: types.StatusPublished},
		},
		incentives: []workflow.Incentive{
			{ID: "i1", Status: types.IncentiveActive},
		},
	}
	engine := &sweepEngine{failFor: map[string]error{"a": errors.New("database is locked")}}
	w := scheduler.NewWorker(store, engine, nil, time.Minute).
		WithClock(func() time.Time { return testNow })

	w.TryRun(context.Background())

	require.Len(t, engine.requests, 2, "failure on one session must not stop the sweep")
	assert.Equal(t, []string{"i1"}, store.expiredIDs, "later duties still run")
}

type auditTrail struct {
	expired []string
}

func (a *auditTrail) IncentiveExpired(id, name string) {
	a.expired = append(a.expired, id)
}

func TestWorker_ExpiresIncentives(t *testing.T) {
	store := &sweepStore{
		incentives: []workflow.Incentive{
			{ID: "i1", Name: "Early bird", Status: types.IncentiveActive},
			{ID: "i2", Name: "Group rate", Status: types.IncentiveActive},
		},
		expireErr: map[string]error{"i1": errors.New("database is locked")},
	}
	trail := &auditTrail{}
	w := scheduler.NewWorker(store, &sweepEngine{}, nil, time.Minute).
		WithClock(func() time.Time { return testNow }).
		WithAuditor(trail)

	w.TryRun(context.Background())

	assert.Equal(t, []string{"i2"}, store.expiredIDs)
	assert.Equal(t, []string{"i2"}, trail.expired, "failed expiries are not audited")
}

func TestWorker_PublishesReadySessions(t *testing.T) {
	store := &sweepStore{
		ready: []workflow.Session{
			{ID: "r1", Status: types.StatusReady},
			{ID: "r2", Status: types.StatusReady},
			{ID: "r3", Status: types.StatusReady},
		},
	}
	publisher := &sweepPublisher{
		publish: map[string]bool{"r1": true},
		errFor:  map[string]error{"r3": errors.New("database is locked")},
	}
	w := scheduler.NewWorker(store, &sweepEngine{}, publisher, time.Minute).
		WithClock(func() time.Time { return testNow })

	w.TryRun(context.Background())

	assert.Equal(t, []string{"r1", "r2", "r3"}, publisher.attempted,
		"every ready session gets an attempt, whatever the outcomes")
}

func TestWorker_SkipIfBusy(t *testing.T) {
	store := &sweepStore{
		ready: []workflow.Session{{ID: "r1", Status: types.StatusReady}},
	}
	publisher := &sweepPublisher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := scheduler.NewWorker(store, &sweepEngine{}, publisher, time.Minute).
		WithClock(func() time.Time { return testNow })

	done := make(chan struct{})
	go func() {
		w.TryRun(context.Background())
		close(done)
	}()

	<-publisher.entered

	// A second run while the first is in flight must return immediately
	// without touching the store.
	w.TryRun(context.Background())
	store.mu.Lock()
	calls := store.listEndedCalls
	store.mu.Unlock()
	assert.Equal(t, 1, calls)

	close(publisher.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not finish")
	}
}

func TestWorker_StartStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := scheduler.NewWorker(&sweepStore{}, &sweepEngine{}, nil, 10*time.Millisecond).
		WithClock(func() time.Time { return testNow })

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
