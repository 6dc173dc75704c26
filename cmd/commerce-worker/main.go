package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/whatsapp-commerce/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-commerce/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/jobs"
	observemetrics "github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/tracing"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if bootstrap.QueueBackend(cfg) == "memory" {
		logger.Error("commerce worker needs a shared queue; set QUEUE_BACKEND to sqs or nats")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName + "-worker",
		Environment: cfg.Env,
	}, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
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

	commerce, err := bootstrap.BuildCommerce(ctx, bootstrap.CommerceDeps{
		Config:    cfg,
		AWS:       awsConfig,
		Pool:      pool,
		MessageDB: messageDB,
		Redis:     bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		Metrics:   observemetrics.NewCommerceMetrics(prometheus.DefaultRegisterer),
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to wire commerce pipeline", "error", err)
		os.Exit(1)
	}

	queue, closeQueue, err := bootstrap.BuildJobQueue(ctx, cfg, awsConfig, logger)
	if err != nil {
		logger.Error("failed to open job queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()

	worker := jobs.NewWorker(
		queue,
		commerce.Processor,
		commerce.Reconciler,
		logger,
		jobs.WithWorkerCount(cfg.WorkerCount),
		jobs.WithJobUpdater(bootstrap.BuildJobTracker(cfg, awsConfig, logger)),
	)
	worker.Start(ctx)
	logger.Info("commerce worker started", "workers", cfg.WorkerCount, "queue", bootstrap.QueueBackend(cfg))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down commerce worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("commerce worker stopped")
	case <-doneCtx.Done():
		logger.Error("commerce worker shutdown timed out", "error", doneCtx.Err())
	}
	if err := shutdownTracing(doneCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
}
