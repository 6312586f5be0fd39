// Package main is the entrypoint for the CaptionForge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/captionforge/internal/api"
	"github.com/kiranshivaraju/captionforge/internal/api/handler"
	mw "github.com/kiranshivaraju/captionforge/internal/api/middleware"
	"github.com/kiranshivaraju/captionforge/internal/api/response"
	"github.com/kiranshivaraju/captionforge/internal/cache"
	"github.com/kiranshivaraju/captionforge/internal/captioning"
	"github.com/kiranshivaraju/captionforge/internal/config"
	"github.com/kiranshivaraju/captionforge/internal/imaging"
	"github.com/kiranshivaraju/captionforge/internal/store"
	"github.com/kiranshivaraju/captionforge/internal/vision"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(cfg.Server.LogLevel)
	slog.Info("config loaded", "vision_backend", cfg.Vision.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create vision backends
	backends, err := vision.NewRegistry(cfg.Vision)
	if err != nil {
		return fmt.Errorf("create vision backends: %w", err)
	}
	slog.Info("vision backends initialized", "default", backends.Default(), "available", backends.Names())

	// 6. Create store and caption service
	pgStore := store.NewPostgresStore(pool)
	encoder := imaging.NewEncoder(cfg.Preprocess)
	svc := captioning.NewService(pgStore, backends, encoder, redisCache, captioning.Options{
		DefaultModel: cfg.Vision.DefaultModel,
		Timeout:      cfg.Vision.Timeout,
		PollInterval: cfg.Jobs.PollInterval,
	})

	recovered, err := svc.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover caption jobs: %w", err)
	}
	if recovered > 0 {
		slog.Info("resumed interrupted caption jobs", "count", recovered)
	}

	catalog := vision.NewCatalog(backends, redisCache, vision.DefaultAvailabilityTTL)
	progress := captioning.NewPublisher(pgStore, cfg.Jobs.PollInterval)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler:   healthHandler(pgStore, redisCache),
		ListModels:      handler.NewListModelsHandler(catalog),
		GenerateCaption: handler.NewGenerateHandler(svc),
		CreateJob:       handler.NewCreateJobHandler(svc),
		ListJobs:        handler.NewListJobsHandler(svc),
		GetJob:          handler.NewGetJobHandler(svc),
		PauseJob:        handler.NewPauseJobHandler(svc),
		ResumeJob:       handler.NewResumeJobHandler(svc),
		CancelJob:       handler.NewCancelJobHandler(svc),
		StreamJob:       handler.NewStreamJobHandler(progress),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// Single-image generation waits on the backend for up to the inference timeout.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Vision.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("caption service shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
