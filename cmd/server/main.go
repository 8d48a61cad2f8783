package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/database"
	"github.com/stemsi/interview-coach/internal/handler"
	"github.com/stemsi/interview-coach/internal/integrity"
	"github.com/stemsi/interview-coach/internal/interview"
	"github.com/stemsi/interview-coach/internal/logger"
	"github.com/stemsi/interview-coach/internal/repository"
	"github.com/stemsi/interview-coach/internal/router"
	"github.com/stemsi/interview-coach/internal/service"
	"github.com/stemsi/interview-coach/internal/validator"
	"github.com/stemsi/interview-coach/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Interview Coach backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	interviewRepo := repository.NewInterviewRepository(pool)
	integrityRepo := repository.NewIntegrityRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	metrics := service.NewMetrics()
	tokenService := service.NewTokenService(cfg)
	interviewService := service.NewInterviewService(interviewRepo, integrityRepo, tokenService, rdb, cfg, log)
	monitorService := service.NewMonitorService(rdb, metrics, log)

	integrityCfg := integrity.NewConfig(cfg.Integrity)
	analyzer := integrity.NewFrameAnalyzer(integrityCfg.Thresholds)

	// Cancelled on shutdown; every live session then ends as abandoned.
	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	defer sessionCancel()

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Interview: handler.NewInterviewHandler(interviewService, log),
		WS: handler.NewWSHandler(interviewService, integrityRepo, monitorService, analyzer, handler.WSOptions{
			BaseContext: sessionCtx,
			Integrity:   integrityCfg,
			SessionOptions: interview.SessionOptions{
				SampleInterval:       cfg.Integrity.SampleInterval,
				HousekeepingInterval: cfg.Integrity.HousekeepingInterval,
			},
			AllowedOrigins: cfg.AllowedOrigins,
		}, log),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, log),
		System:  handler.NewSystemHandler(pool, rdb, monitorRepo, monitorService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	integrityWorker := worker.NewIntegrityWorker(integrityRepo, rdb, log)
	answerWorker := worker.NewAnswerWorker(interviewRepo, rdb, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		integrityWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		answerWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Abandon live sessions so each one persists its integrity record.
	sessionCancel()
	if err := monitorService.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("live", monitorService.LiveCount()).Msg("Live sessions still running")
	}

	// 3. Stop workers once the sessions have queued their last items.
	workerCancel()
	workers.Wait()

	log.Info().Interface("metrics", metrics.Snapshot()).Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
