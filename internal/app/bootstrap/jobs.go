package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/jobs"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// JobTracker records job status for the publisher and settles it for workers.
type JobTracker interface {
	jobs.Recorder
	jobs.Updater
}

// QueueBackend resolves USE_MEMORY_QUEUE and QUEUE_BACKEND to one of
// memory, nats or sqs.
func QueueBackend(cfg *appconfig.Config) string {
	if cfg.UseMemoryQueue {
		return "memory"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.QueueBackend)) {
	case "memory":
		return "memory"
	case "nats":
		return "nats"
	default:
		return "sqs"
	}
}

// BuildJobQueue opens the job queue. The returned close func is never nil.
func BuildJobQueue(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (jobs.Client, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}
	switch QueueBackend(cfg) {
	case "memory":
		logger.Info("using in-memory job queue")
		return jobs.NewMemoryQueue(1024), noop, nil
	case "nats":
		q, err := jobs.ConnectNATS(ctx, jobs.NATSConfig{
			URL:     cfg.NATSURL,
			Token:   cfg.NATSToken,
			Subject: cfg.NATSSubject,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using NATS JetStream job queue", "subject", cfg.NATSSubject)
		return q, q.Close, nil
	default:
		if strings.TrimSpace(cfg.CommerceQueueURL) == "" {
			return nil, noop, fmt.Errorf("bootstrap: COMMERCE_QUEUE_URL required for sqs")
		}
		logger.Info("using SQS job queue", "queue_url", cfg.CommerceQueueURL)
		return jobs.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.CommerceQueueURL), noop, nil
	}
}

// BuildJobTracker uses DynamoDB when a jobs table is configured and an
// in-process store otherwise.
func BuildJobTracker(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) JobTracker {
	if strings.TrimSpace(cfg.JobsTable) == "" || QueueBackend(cfg) == "memory" {
		return jobs.NewMemoryJobStore()
	}
	return jobs.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.JobsTable, logger)
}
