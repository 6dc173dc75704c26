// Package jobs moves webhook work onto a queue and runs it on a worker pool.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/whatsapp-commerce/internal/events"
)

// Client is the transport the publisher and worker share.
type Client interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Kind names the job payload.
type Kind string

const (
	KindInbound Kind = "whatsapp_inbound.v1"
	KindPayment Kind = "payment_succeeded.v1"
)

type payload struct {
	ID          string                     `json:"id"`
	Kind        Kind                       `json:"kind"`
	TrackStatus bool                       `json:"track_status"`
	Inbound     *events.InboundMessageV1   `json:"inbound,omitempty"`
	Payment     *events.PaymentSucceededV1 `json:"payment,omitempty"`
}

func encodePayload(p payload) (payload, string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return payload{}, "", fmt.Errorf("jobs: failed to encode payload: %w", err)
	}
	return p, string(body), nil
}
