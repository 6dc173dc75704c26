package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultVisibility = 30 * time.Second

// MemoryQueue is a single-process Client. Received messages that are not
// deleted within the visibility timeout are delivered again, like SQS.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []Message
	inflight   map[string]inflightMessage
	visibility time.Duration
	signal     chan struct{}
	capacity   int
	now        func() time.Time
}

type inflightMessage struct {
	msg      Message
	deadline time.Time
}

// NewMemoryQueue creates a queue holding at most buffer undelivered messages.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		inflight:   map[string]inflightMessage{},
		visibility: defaultVisibility,
		signal:     make(chan struct{}, 1),
		capacity:   buffer,
		now:        time.Now,
	}
}

// WithVisibility overrides how long a received message stays hidden.
func (q *MemoryQueue) WithVisibility(d time.Duration) *MemoryQueue {
	if d > 0 {
		q.visibility = d
	}
	return q
}

// Send enqueues body, waiting for room until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	msg := Message{ID: uuid.NewString(), Body: body}
	for {
		q.mu.Lock()
		if len(q.ready) < q.capacity {
			q.ready = append(q.ready, msg)
			q.mu.Unlock()
			q.wake()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Receive returns up to maxMessages, waiting at most waitSeconds (forever
// when zero) for the first one.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if batch := q.take(maxMessages); len(batch) > 0 {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-q.signal:
		case <-time.After(q.visibility / 4):
		}
	}
}

// Delete acknowledges a received message.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	delete(q.inflight, receiptHandle)
	q.mu.Unlock()
	return nil
}

// Len reports messages waiting or in flight.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

func (q *MemoryQueue) take(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for handle, m := range q.inflight {
		if now.After(m.deadline) {
			delete(q.inflight, handle)
			q.ready = append(q.ready, m.msg)
		}
	}
	if len(q.ready) == 0 {
		return nil
	}
	n := min(max, len(q.ready))
	batch := make([]Message, 0, n)
	for _, msg := range q.ready[:n] {
		msg.ReceiptHandle = uuid.NewString()
		q.inflight[msg.ReceiptHandle] = inflightMessage{msg: msg, deadline: now.Add(q.visibility)}
		batch = append(batch, msg)
	}
	q.ready = append(q.ready[:0], q.ready[n:]...)
	return batch
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
