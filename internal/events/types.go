// Package events defines the payloads that move between webhook handlers,
// workers and the operator feed, plus webhook idempotency tracking.
package events

import "time"

const (
	TypeInboundMessage = "whatsapp.message.received.v1"
	TypePaymentSuccess = "payment.succeeded.v1"
	TypeHandoff        = "conversation.handed_off.v1"
	TypeOrderPaid      = "order.paid.v1"
)

// InboundMessageV1 is one customer message unit split out of a webhook.
type InboundMessageV1 struct {
	MessageID     string    `json:"message_id"`
	PhoneNumberID string    `json:"phone_number_id"`
	From          string    `json:"from"`
	ProfileName   string    `json:"profile_name,omitempty"`
	Type          string    `json:"type"`
	Content       string    `json:"content"`
	MediaID       string    `json:"media_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentSucceededV1 is a verified gateway charge.success notification.
type PaymentSucceededV1 struct {
	EventID     string    `json:"event_id"`
	Provider    string    `json:"provider"`
	Reference   string    `json:"reference"`
	OrderNumber string    `json:"order_number"`
	Channel     string    `json:"channel,omitempty"`
	AmountKobo  int64     `json:"amount_kobo"`
	PaidAt      time.Time `json:"paid_at"`
}

// HandoffV1 tells operators a customer needs a human.
type HandoffV1 struct {
	TenantID        string    `json:"tenant_id"`
	ConversationID  string    `json:"conversation_id"`
	CustomerAddress string    `json:"customer_address"`
	CustomerName    string    `json:"customer_name,omitempty"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// OrderPaidV1 announces a settled order.
type OrderPaidV1 struct {
	TenantID       string    `json:"tenant_id"`
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Total          string    `json:"total"`
	Channel        string    `json:"channel,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
