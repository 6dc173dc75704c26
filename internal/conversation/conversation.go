// Package conversation owns the chat aggregate, its sales state machine and
// the stores that persist it.
package conversation

import (
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
)

const (
	OutcomeConverted = "converted"
	OutcomeAbandoned = "abandoned"
)

// Conversation is the single aggregate for one customer of one tenant. State
// and Cart are always persisted together.
type Conversation struct {
	ID              string             `json:"id"`
	TenantID        string             `json:"tenant_id"`
	CustomerAddress string             `json:"customer_address"`
	CustomerName    string             `json:"customer_name,omitempty"`
	State           State              `json:"state"`
	Context         map[string]any     `json:"context,omitempty"`
	Cart            *cart.OrderContext `json:"cart"`
	Active          bool               `json:"active"`
	HandedOff       bool               `json:"handed_off"`
	HandedOffReason string             `json:"handed_off_reason,omitempty"`
	HandedOffAt     *time.Time         `json:"handed_off_at,omitempty"`
	Outcome         string             `json:"outcome,omitempty"`
	OrderID         string             `json:"order_id,omitempty"`
	MessageCount    int                `json:"message_count"`
	LastMessageAt   time.Time          `json:"last_message_at"`
	Version         int                `json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// New builds a fresh conversation in the greeting state with an empty cart.
func New(tenantID, address, name string, now time.Time) *Conversation {
	return &Conversation{
		TenantID:        tenantID,
		CustomerAddress: address,
		CustomerName:    name,
		State:           StateGreeting,
		Context:         map[string]any{},
		Cart:            cart.New(),
		Active:          true,
		LastMessageAt:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// LockKey identifies the conversation for single-writer locking.
func LockKey(tenantID, address string) string {
	return tenantID + ":" + address
}

// CartOrEmpty never returns nil.
func (c *Conversation) CartOrEmpty() *cart.OrderContext {
	if c.Cart == nil {
		c.Cart = cart.New()
	}
	return c.Cart
}

// Closed reports whether the next customer message starts a fresh
// conversation. Handed-off conversations stay with the operator.
func (c *Conversation) Closed() bool {
	return !c.Active || c.State == StateCompleted || c.State == StateAbandoned
}

// Reactivate restarts an inactive conversation from the greeting state.
func (c *Conversation) Reactivate() {
	c.State = StateGreeting
	c.Active = true
	c.Cart = cart.New()
	c.HandedOff = false
	c.HandedOffReason = ""
	c.HandedOffAt = nil
	c.Outcome = ""
	c.OrderID = ""
}

// RecordMessage bumps the activity counters for a new message.
func (c *Conversation) RecordMessage(at time.Time) {
	c.MessageCount++
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
}

// Direction of a logged message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is an append-only chat log entry.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      Direction `json:"direction"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	MediaRef       string    `json:"media_ref,omitempty"`
	UpstreamID     string    `json:"upstream_id,omitempty"`
	Intent         string    `json:"intent,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
