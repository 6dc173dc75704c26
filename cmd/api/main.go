package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/whatsapp-commerce/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-commerce/internal/api/router"
	"github.com/wolfman30/whatsapp-commerce/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/jobs"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/tracing"
	"github.com/wolfman30/whatsapp-commerce/internal/operator"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-commerce API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	}, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil || pool == nil {
		logger.Error("postgres is required", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	messageDB, err := bootstrap.OpenMessageDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open message db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = messageDB.Close() }()
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	metricsHandler, metrics := setupMetrics()
	hub := operator.NewHub(logger)

	commerce, err := bootstrap.BuildCommerce(ctx, bootstrap.CommerceDeps{
		Config:    cfg,
		AWS:       awsCfg,
		Pool:      pool,
		MessageDB: messageDB,
		Redis:     redisClient,
		Metrics:   metrics,
		Sink:      hub,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to wire commerce pipeline", "error", err)
		os.Exit(1)
	}

	queue, closeQueue, err := bootstrap.BuildJobQueue(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to open job queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()
	tracker := bootstrap.BuildJobTracker(cfg, awsCfg, logger)
	publisher := jobs.NewPublisher(queue, logger, jobs.WithRecorder(tracker))

	// The in-memory queue only exists in this process, so it is drained here.
	var inlineWorker *jobs.Worker
	if bootstrap.QueueBackend(cfg) == "memory" {
		inlineWorker = jobs.NewWorker(queue, commerce.Processor, commerce.Reconciler, logger,
			jobs.WithWorkerCount(cfg.WorkerCount),
			jobs.WithJobUpdater(tracker),
		)
		inlineWorker.Start(ctx)
		logger.Info("inline commerce worker started", "workers", cfg.WorkerCount)
	}

	r := router.New(buildRouterConfig(cfg, commerce, publisher, hub, metricsHandler, metrics, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if inlineWorker != nil {
		inlineWorker.Wait()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
