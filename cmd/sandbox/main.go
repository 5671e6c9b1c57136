package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/database"
	"github.com/stemsi/aptiq-proctor/internal/handler"
	"github.com/stemsi/aptiq-proctor/internal/logger"
	"github.com/stemsi/aptiq-proctor/internal/middleware"
	"github.com/stemsi/aptiq-proctor/internal/repository"
	"github.com/stemsi/aptiq-proctor/internal/router"
	"github.com/stemsi/aptiq-proctor/internal/service"
	"github.com/stemsi/aptiq-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, nil)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("fixture", cfg.FixturePath).
		Msg("Starting Aptiq sandbox backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Load Fixture ──────────────────────────────────────────────────
	fixture, err := repository.LoadFixture(cfg.FixturePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load fixture")
	}
	catalog, err := repository.NewCatalog(fixture, func(pw string) (string, error) {
		return service.HashPassword(pw, cfg.BcryptCost)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build catalog")
	}
	log.Info().
		Int("tests", len(fixture.Tests)).
		Int("users", len(fixture.Users)).
		Msg("Fixture loaded")

	// ─── Attempt Store + Event Broker ──────────────────────────────────
	backend, err := database.OpenBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer backend.Close()

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, catalog)
	testService := service.NewTestService(catalog)
	attemptService := service.NewAttemptService(catalog, backend.Store, backend.Broker, cfg.DefaultTimeLimit, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Test:    handler.NewTestHandler(testService),
		Attempt: handler.NewAttemptHandler(attemptService),
		Monitor: handler.NewMonitorHandler(attemptService, backend.Broker, log),
		WS:      handler.NewWSHandler(backend.Broker, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	expiryWorker := worker.NewExpiryWorker(attemptService, cfg.ExpiryInterval, cfg.ExpiryGrace, log)
	go expiryWorker.Start(workerCtx)

	var loginLimiter *middleware.RateLimiter
	if cfg.LoginRateLimit > 0 {
		loginLimiter = middleware.NewRateLimiter(cfg.LoginRateLimit, time.Minute)
		go loginLimiter.Run(workerCtx.Done())
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, loginLimiter, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers.
	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
