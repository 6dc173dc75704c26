package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	natsStreamName   = "COMMERCE_JOBS"
	natsConsumerName = "commerce-worker"
	natsAckWait      = 60 * time.Second
	natsDefaultWait  = 5 * time.Second
)

// NATSConfig holds JetStream connection settings.
type NATSConfig struct {
	URL     string
	Token   string
	Subject string
}

// NATSQueue is a Client on a JetStream work-queue stream with one durable
// pull consumer shared by all workers.
type NATSQueue struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	subject  string
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]jetstream.Msg
}

// ConnectNATS dials the server and ensures the stream and consumer exist.
func ConnectNATS(ctx context.Context, cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("jobs: NATS url required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = "commerce.jobs"
	}

	opts := []nats.Option{
		nats.Name("whatsapp-commerce"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("jobs: connect NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jobs: create JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        natsStreamName,
		Subjects:    []string{subject},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      7 * 24 * time.Hour,
		Description: "Inbound chat and payment jobs",
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("jobs: ensure stream: %w", err)
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, natsStreamName, jetstream.ConsumerConfig{
		Durable:       natsConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       natsAckWait,
		FilterSubject: subject,
		MaxDeliver:    10,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jobs: ensure consumer: %w", err)
	}

	return &NATSQueue{
		conn:     nc,
		js:       js,
		consumer: consumer,
		subject:  subject,
		logger:   logger,
		pending:  map[string]jetstream.Msg{},
	}, nil
}

func (q *NATSQueue) Send(ctx context.Context, body string) error {
	if _, err := q.js.Publish(ctx, q.subject, []byte(body)); err != nil {
		return fmt.Errorf("jobs: publish NATS message: %w", err)
	}
	return nil
}

func (q *NATSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}
	wait := natsDefaultWait
	if waitSeconds > 0 {
		wait = time.Duration(waitSeconds) * time.Second
	}

	batch, err := q.consumer.Fetch(maxMessages, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("jobs: fetch NATS messages: %w", err)
	}

	var out []Message
	for msg := range batch.Messages() {
		handle := natsHandle(msg)
		q.mu.Lock()
		q.pending[handle] = msg
		q.mu.Unlock()
		out = append(out, Message{ID: handle, Body: string(msg.Data()), ReceiptHandle: handle})
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return out, fmt.Errorf("jobs: NATS batch: %w", err)
	}
	return out, nil
}

// Delete acks the message so JetStream removes it from the work queue.
func (q *NATSQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	msg, ok := q.pending[receiptHandle]
	delete(q.pending, receiptHandle)
	q.mu.Unlock()
	if !ok {
		return nil
	}
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("jobs: ack NATS message: %w", err)
	}
	return nil
}

// Close drains the connection.
func (q *NATSQueue) Close() {
	if q.conn != nil {
		if err := q.conn.Drain(); err != nil {
			q.logger.Warn("NATS drain failed", "error", err)
		}
	}
}

func natsHandle(msg jetstream.Msg) string {
	if meta, err := msg.Metadata(); err == nil {
		return strconv.FormatUint(meta.Sequence.Stream, 10)
	}
	return msg.Subject() + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
}
