// Package main provides the sitegraft migration server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/config"
	"github.com/avollmer/sitegraft/internal/llm"
	"github.com/avollmer/sitegraft/internal/metrics"
	"github.com/avollmer/sitegraft/internal/oracle"
	"github.com/avollmer/sitegraft/internal/parser"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/refine"
	"github.com/avollmer/sitegraft/internal/server"
	"github.com/avollmer/sitegraft/internal/service"
	"github.com/avollmer/sitegraft/internal/store"
)

func main() {
	cfg := config.Load()

	logger, closeLog := config.NewLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting sitegraft-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	state := store.Open(ctx, store.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	logger.Info("state store ready", "backend", state.Backend())

	checkpoints := checkpoint.NewStore(state, pipeline.Phases, logger)
	manager := service.NewJobManager(state, logger)
	hub := server.NewHub(logger)
	stats := metrics.NewCollector()
	observer := metrics.NewObserver(stats)

	collab := service.Collaborators{
		Analyzer: parser.NewDescriptionAnalyzer(logger),
	}

	// The diagnostic model is optional: without it the refinement loops
	// still run, escalation just skips the diagnosis step.
	if model, err := llm.NewModel(context.Background(), cfg); err != nil {
		logger.Warn("diagnostic model unavailable, escalation diagnosis disabled", "error", err)
	} else {
		collab.Diagnostic = llm.NewDiagnoser(model)
	}

	// Same story for the built-in similarity oracle: without an embedding
	// endpoint, refinement is skipped rather than failed.
	if embedder, err := oracle.NewEmbedder(cfg); err != nil {
		logger.Warn("embedding backend unavailable, refinement disabled", "error", err)
	} else {
		collab.Oracle = oracle.New(embedder, nil, logger)
	}

	emitter := pipeline.EmitterFunc(func(event pipeline.Event) {
		hub.Emit(event)
		observer.Emit(event)
	})

	svc := service.NewMigrationService(
		state,
		checkpoints,
		manager,
		collab,
		refine.ParamsFromTuning(cfg.Tuning),
		emitter,
		logger,
	)

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      server.New(svc, hub, state, stats, logger).Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // long for slow phase handlers
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("API available", "url", "http://localhost:"+cfg.ServerPort)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
