package jobs

import (
	"context"
	"fmt"

	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// Publisher enqueues jobs for the worker pool.
type Publisher struct {
	queue  Client
	jobs   Recorder
	logger *logging.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithRecorder tracks each published job as pending.
func WithRecorder(r Recorder) PublisherOption {
	return func(p *Publisher) { p.jobs = r }
}

func NewPublisher(queue Client, logger *logging.Logger, opts ...PublisherOption) *Publisher {
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Publisher{queue: queue, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnqueueInbound publishes one customer message.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg events.InboundMessageV1) error {
	return p.enqueue(ctx, payload{Kind: KindInbound, Inbound: &msg}, msg.MessageID)
}

// EnqueuePayment publishes a verified payment.
func (p *Publisher) EnqueuePayment(ctx context.Context, evt events.PaymentSucceededV1) error {
	return p.enqueue(ctx, payload{Kind: KindPayment, Payment: &evt}, evt.Reference)
}

func (p *Publisher) enqueue(ctx context.Context, job payload, sourceID string) error {
	job.TrackStatus = p.jobs != nil
	job, body, err := encodePayload(job)
	if err != nil {
		return err
	}

	if job.TrackStatus {
		if err := p.jobs.PutPending(ctx, &Record{JobID: job.ID, Kind: job.Kind, SourceID: sourceID}); err != nil {
			p.logger.Warn("failed to record pending job", "error", err, "job_id", job.ID)
			job.TrackStatus = false
			if job, body, err = encodePayload(job); err != nil {
				return err
			}
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("jobs: failed to enqueue job: %w", err)
	}
	p.logger.Debug("job enqueued", "job_id", job.ID, "kind", job.Kind, "source_id", sourceID)
	return nil
}
