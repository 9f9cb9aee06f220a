// SPDX-License-Identifier: MIT

// Package api exposes the publishing workflow over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/health"
	"github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/monitor"
	"github.com/trainhub/sessionflow/internal/readiness"
	"github.com/trainhub/sessionflow/internal/workflow"
)

// SessionStore is the read surface the handlers need.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*workflow.Session, error)
	ListStatusLogForSession(ctx context.Context, sessionID string) ([]workflow.StatusLogEntry, error)
	PersistReadiness(ctx context.Context, sessionID string, percentage int) error
}

// Engine is the transition surface.
type Engine interface {
	Request(ctx context.Context, req workflow.TransitionRequest) (*workflow.Session, error)
}

// Orchestrator is the publishing rules surface.
type Orchestrator interface {
	ValidatePublishingRules(ctx context.Context, sessionID string) (*workflow.PublishVerdict, error)
	ValidateMultipleSessions(ctx context.Context, sessionIDs []string) (map[string]*workflow.PublishVerdict, error)
}

// Monitor is the aggregation surface.
type Monitor interface {
	CollectWorkflowMetrics(ctx context.Context) (*monitor.WorkflowMetrics, error)
	PerformHealthCheck(ctx context.Context) (*monitor.HealthReport, error)
}

// Auditor records denied publish requests.
type Auditor interface {
	PublishDenied(sessionID, actor, reason string)
}

// Server wires the workflow services into an HTTP handler.
type Server struct {
	store        SessionStore
	engine       Engine
	orchestrator Orchestrator
	monitor      Monitor
	scorer       *readiness.Scorer
	healthMgr    *health.Manager
	auditor      Auditor
	cfg          config.Server
	logger       zerolog.Logger
}

// NewServer creates the API server.
func NewServer(store SessionStore, engine Engine, orch Orchestrator, mon Monitor, scorer *readiness.Scorer, healthMgr *health.Manager, cfg config.Server) *Server {
	return &Server{
		store:        store,
		engine:       engine,
		orchestrator: orch,
		monitor:      mon,
		scorer:       scorer,
		healthMgr:    healthMgr,
		cfg:          cfg,
		logger:       log.WithComponent("api"),
	}
}

// SetAuditor attaches an audit hook for denied publish requests.
func (s *Server) SetAuditor(a Auditor) {
	s.auditor = a
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{id}", s.handleGetSession)
			r.Patch("/{id}", s.handlePatchStatus)
			r.Post("/{id}/publish", s.handlePublish)
			r.Get("/{id}/readiness", s.handleReadiness)
			r.Get("/{id}/readiness-checklist", s.handleReadinessChecklist)
			r.Get("/{id}/log", s.handleStatusLog)
			r.Post("/bulk/publish", s.handleBulkPublish)
			r.Post("/bulk/archive", s.handleBulkArchive)
		})

		r.Route("/workflow", func(r chi.Router) {
			r.Get("/metrics", s.handleWorkflowMetrics)
			r.Get("/health", s.handleWorkflowHealth)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"
	writeJSON(w, http.StatusOK, s.healthMgr.Health(r.Context(), verbose))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := s.healthMgr.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
