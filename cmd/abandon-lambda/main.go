// Command abandon-lambda runs on an EventBridge schedule and closes
// conversations that went quiet before checkout, archiving their transcripts
// to S3 when a bucket is configured.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/whatsapp-commerce/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-commerce/internal/app/bootstrap"
	"github.com/wolfman30/whatsapp-commerce/internal/archive"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type sweepResult struct {
	Abandoned int    `json:"abandoned"`
	RanAt     string `json:"ran_at"`
}

type handler struct {
	sweeper sweeper
	logger  *logging.Logger
	now     func() time.Time
}

func (h *handler) handle(ctx context.Context, evt events.CloudWatchEvent) (sweepResult, error) {
	now := h.now()
	if !evt.Time.IsZero() {
		now = evt.Time.UTC()
	}
	closed, err := h.sweeper.Sweep(ctx, now)
	if err != nil {
		h.logger.Error("abandonment sweep failed", "error", err, "abandoned", closed)
		return sweepResult{Abandoned: closed, RanAt: now.Format(time.RFC3339)}, err
	}
	h.logger.Info("abandonment sweep finished", "abandoned", closed)
	return sweepResult{Abandoned: closed, RanAt: now.Format(time.RFC3339)}, nil
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

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
	messageDB, err := bootstrap.OpenMessageDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open message db", "error", err)
		os.Exit(1)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	tenants, err := bootstrap.BuildTenantSources(ctx, cfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("failed to load tenants", "error", err)
		os.Exit(1)
	}
	var locker conversation.Locker = conversation.NewKeyedMutex()
	if redisClient != nil {
		locker = conversation.NewRedisLocker(redisClient, cfg.ConversationLockTTL)
	}

	opts := []conversation.SweeperOption{conversation.WithAbandonAfter(cfg.AbandonAfter)}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	store := archive.NewStore(s3Client, cfg.ArchiveBucket, logger.Logger)
	if archiver := archive.NewArchiver(store, conversation.NewMessageLog(messageDB), logger.Logger); archiver != nil {
		opts = append(opts, conversation.WithArchiver(archiver))
		logger.Info("transcript archiving enabled", "bucket", cfg.ArchiveBucket)
	}

	sw := conversation.NewSweeper(
		conversation.NewStore(pool),
		conversation.NewMachine(tenants.Catalog),
		locker,
		logger,
		opts...,
	)
	h := &handler{sweeper: sw, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	lambda.Start(h.handle)
}
