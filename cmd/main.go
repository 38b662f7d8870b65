package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wembed/benchcoord/internal/cleanup"
	"github.com/wembed/benchcoord/internal/config"
	"github.com/wembed/benchcoord/internal/db"
	"github.com/wembed/benchcoord/internal/handlers"
	"github.com/wembed/benchcoord/internal/logger"
	"github.com/wembed/benchcoord/internal/observability"
	"github.com/wembed/benchcoord/internal/repos"
	"github.com/wembed/benchcoord/internal/server"
	"github.com/wembed/benchcoord/internal/utils"
	"github.com/wembed/benchcoord/internal/worker"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load(log)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "benchcoord",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	graphRepo := repos.NewGraphRepo(thePG, log)
	jobRepo := repos.NewJobRepo(thePG, log)
	resultRepo := repos.NewResultRepo(thePG, log)
	testRepo := repos.NewTestRepo(thePG, log)
	measurementRepo := repos.NewMeasurementRepo(thePG, log)
	provenanceViewRepo := repos.NewProvenanceViewRepo(thePG, log)

	// Worker pool, only when an embedding binary is configured. Status-only
	// deployments run the API without claiming jobs.
	embedBinary := utils.GetEnv("WEMBED_BINARY", "", log)
	if embedBinary != "" {
		log.Info("Setting up worker pool from main...", "binary", embedBinary)
		embedWorker := worker.New(log, jobRepo, worker.NewExecEmbedFunc(embedBinary), worker.Options{
			Concurrency:   cfg.Worker.Concurrency,
			PollInterval:  time.Duration(cfg.Worker.PollIntervalSec) * time.Second,
			StaleTimeout:  time.Duration(cfg.Queue.StaleTimeoutHrs) * time.Hour,
			DataDirectory: cfg.DataDirectory,
		})
		go func() {
			if err := embedWorker.Start(ctx); err != nil {
				log.Error("Worker pool stopped", "error", err)
			}
		}()
	} else {
		log.Info("WEMBED_BINARY not set, running without worker pool")
	}

	// Handlers
	log.Info("Setting up Handlers from main...")
	graphHandler := handlers.NewGraphHandler(log, graphRepo, jobRepo, resultRepo, testRepo, handlers.EnqueuePolicy{
		Dimensions:    cfg.Queue.Dimensions,
		MaxIterations: int32(cfg.Queue.MaxIterations),
		Seed:          int32(*cfg.Queue.Seed),
	})
	statusHandler := handlers.NewStatusHandler(log, jobRepo)
	provenanceHandler := handlers.NewProvenanceHandler(log, provenanceViewRepo)
	reconcileHandler := handlers.NewReconcileHandler(log, measurementRepo, cfg.Reconcile.Pairs)
	sweeper := cleanup.NewSweeper(log, graphRepo, resultRepo, testRepo)
	cleanupHandler := handlers.NewCleanupHandler(log, sweeper, cfg.DataDirectory)

	// Router
	router := server.NewRouter(server.RouterConfig{
		StatusHandler:     statusHandler,
		ProvenanceHandler: provenanceHandler,
		ReconcileHandler:  reconcileHandler,
		GraphHandler:      graphHandler,
		CleanupHandler:    cleanupHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Starting server...", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
