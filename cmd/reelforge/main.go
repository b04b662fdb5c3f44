// Package main provides the entry point for reelforge.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maauso/reelforge/internal/bootstrap"
	"github.com/maauso/reelforge/internal/config"
	"github.com/maauso/reelforge/internal/pipeline"
	"github.com/maauso/reelforge/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting reelforge",
		slog.String("run_mode", cfg.RunMode),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("work_dir", cfg.WorkDir),
		slog.Int("download_attempts", cfg.DownloadAttempts),
		slog.Float64("chars_per_second", cfg.CharsPerSecond),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	if cfg.RunMode == config.RunModeServe {
		return serve(ctx, cfg, deps.Orchestrator, logger)
	}
	return once(ctx, deps.Orchestrator, logger)
}

// once runs a single sweep and reports it.
func once(ctx context.Context, orch *pipeline.Orchestrator, logger *slog.Logger) error {
	summary, err := orch.Sweep(ctx)
	if summary != nil {
		logger.Info("sweep summary",
			slog.String("run_id", summary.RunID.String()),
			slog.Int("total", summary.Total),
			slog.Int("succeeded", summary.Succeeded),
			slog.Int("failed", summary.Failed),
			slog.Int("stale", summary.Stale),
			slog.Int("skipped", summary.Skipped),
			slog.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
		)
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}

// serve exposes the ops surface until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, orch *pipeline.Orchestrator, logger *slog.Logger) error {
	handlers := server.NewHandlers(orch, logger, server.WithBaseContext(ctx))
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Allow for waited sweeps
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// A triggered sweep outlives its request; the pool must outlive the sweep.
	if err := handlers.Wait(shutdownCtx); err != nil {
		return fmt.Errorf("wait for running sweep: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
