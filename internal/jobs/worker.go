package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	deleteTimeout       = 5 * time.Second
)

// InboundProcessor handles one customer message.
type InboundProcessor interface {
	Process(ctx context.Context, msg events.InboundMessageV1) error
}

// PaymentReconciler settles one payment and reports the outcome.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, evt events.PaymentSucceededV1) (string, error)
}

// Worker consumes jobs and dispatches them by kind.
type Worker struct {
	queue    Client
	inbound  InboundProcessor
	payments PaymentReconciler
	jobs     Updater
	logger   *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobs             Updater
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		cfg.receiveWaitSecs = min(seconds, maxWaitSeconds)
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size > 0 {
			cfg.receiveBatchSize = min(size, maxReceiveBatchSize)
		}
	}
}

// WithJobUpdater settles tracked jobs.
func WithJobUpdater(u Updater) WorkerOption {
	return func(cfg *workerConfig) { cfg.jobs = u }
}

func NewWorker(queue Client, inbound InboundProcessor, payments PaymentReconciler, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if inbound == nil {
		panic("jobs: inbound processor cannot be nil")
	}
	if payments == nil {
		panic("jobs: payment reconciler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		queue:    queue,
		inbound:  inbound,
		payments: payments,
		jobs:     cfg.jobs,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("commerce worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("commerce worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	var job payload
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode job", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	outcome, retry, err := w.dispatch(ctx, job)
	if err != nil {
		w.logger.Error("job failed", "error", err, "job_id", job.ID, "kind", job.Kind, "retry", retry)
		if job.TrackStatus && w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", job.ID)
			}
		}
		if retry {
			// left on the queue for redelivery after the visibility timeout
			return
		}
	} else {
		w.logger.Debug("job processed", "job_id", job.ID, "kind", job.Kind, "outcome", outcome)
		if job.TrackStatus && w.jobs != nil {
			if storeErr := w.jobs.MarkCompleted(ctx, job.ID, outcome); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", job.ID)
			}
		}
	}

	w.deleteMessage(msg.ReceiptHandle)
}

// dispatch runs one job. A panicking handler fails the job without a retry.
func (w *Worker) dispatch(ctx context.Context, job payload) (outcome string, retry bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", "panic", r, "job_id", job.ID, "kind", job.Kind, "stack", string(debug.Stack()))
			outcome, retry = "", false
			err = fmt.Errorf("jobs: panic: %v", r)
		}
	}()

	switch {
	case job.Kind == KindInbound && job.Inbound != nil:
		return "", false, w.inbound.Process(ctx, *job.Inbound)
	case job.Kind == KindPayment && job.Payment != nil:
		outcome, err = w.payments.Reconcile(ctx, *job.Payment)
		return outcome, err != nil, err
	default:
		return "", false, fmt.Errorf("jobs: unknown job type %q", job.Kind)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete job", "error", err)
	}
}
