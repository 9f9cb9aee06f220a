// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trainhub/sessionflow/internal/api"
	"github.com/trainhub/sessionflow/internal/audit"
	"github.com/trainhub/sessionflow/internal/config"
	"github.com/trainhub/sessionflow/internal/conflict"
	"github.com/trainhub/sessionflow/internal/health"
	sflog "github.com/trainhub/sessionflow/internal/log"
	"github.com/trainhub/sessionflow/internal/monitor"
	"github.com/trainhub/sessionflow/internal/publishing"
	"github.com/trainhub/sessionflow/internal/readiness"
	"github.com/trainhub/sessionflow/internal/scheduler"
	"github.com/trainhub/sessionflow/internal/store/sqlite"
	"github.com/trainhub/sessionflow/internal/validation"
	"github.com/trainhub/sessionflow/internal/workflow"
)

var version = "v1.0.0"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config.Load()

	sflog.Configure(sflog.Config{
		Level:   cfg.LogLevel,
		Service: "sessionflow",
	})
	logger := sflog.WithComponent("daemon")

	if err := cfg.Workflow.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid workflow configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	store := sqlite.NewStore(db)

	scorer := readiness.NewScorer(cfg.Workflow)
	validator := validation.NewValidator(cfg.Workflow, store)
	detector := conflict.NewDetector(store)
	orchestrator := publishing.NewOrchestrator(store, validator, detector, cfg.Workflow)

	auditLogger := audit.NewLogger()
	engine := workflow.NewEngine(store, orchestrator, scorer, workflow.WithAuditor(auditLogger))
	orchestrator.SetEngine(engine)

	recorder := monitor.NewRecorder()
	orchestrator.SetRecorder(recorder)
	mon := monitor.NewMonitor(store, recorder, 24*time.Hour)

	worker := scheduler.NewWorker(store, engine, orchestrator, cfg.Workflow.SchedulerInterval).
		WithAuditor(auditLogger)
	go worker.Start(ctx)

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.CheckerFunc{
		CheckName: "database",
		Fn: func(ctx context.Context) health.CheckResult {
			if err := db.PingContext(ctx); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		},
	})

	server := api.NewServer(store, engine, orchestrator, mon, scorer, healthMgr, cfg.Server)
	server.SetAuditor(auditLogger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
