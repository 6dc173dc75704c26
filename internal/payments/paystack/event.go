package paystack

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"

	StatusSuccess = "success"

	// ReferencePrefix marks references issued for chat orders.
	ReferencePrefix = "WA-"
)

// Event is a webhook delivery.
type Event struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

// Transaction is the data block shared by webhooks and verify responses.
type Transaction struct {
	ID              int64          `json:"id"`
	Domain          string         `json:"domain"`
	Status          string         `json:"status"`
	Reference       string         `json:"reference"`
	Amount          int64          `json:"amount"`
	Message         string         `json:"message"`
	GatewayResponse string         `json:"gateway_response"`
	PaidAt          string         `json:"paid_at"`
	CreatedAt       string         `json:"created_at"`
	Channel         string         `json:"channel"`
	Currency        string         `json:"currency"`
	Metadata        map[string]any `json:"-"`
	Customer        *Customer      `json:"customer,omitempty"`
}

// Customer is the payer as Paystack knows them.
type Customer struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	CustomerCode string `json:"customer_code"`
	Phone        string `json:"phone"`
}

// UnmarshalJSON tolerates metadata sent as an object, a JSON string or "".
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	aux := struct {
		*plain
		RawMetadata json.RawMessage `json:"metadata"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Metadata = decodeMetadata(aux.RawMetadata)
	return nil
}

func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}

// Successful reports a completed charge.
func (e Event) Successful() bool {
	return e.Event == EventChargeSuccess && strings.EqualFold(e.Data.Status, StatusSuccess)
}

// OrderNumber decodes the order number from a chat order reference. Other
// references come back unchanged.
func (t Transaction) OrderNumber() string {
	return strings.TrimPrefix(t.Reference, ReferencePrefix)
}

// AmountMajor converts the kobo amount to naira.
func (t Transaction) AmountMajor() decimal.Decimal {
	return cart.FromMinorUnits(t.Amount)
}

// PaidTime parses paid_at, falling back to fallback when absent or invalid.
func (t Transaction) PaidTime(fallback time.Time) time.Time {
	raw := strings.TrimSpace(t.PaidAt)
	if raw == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return fallback
}

// MetadataString returns a string metadata value.
func (t Transaction) MetadataString(key string) string {
	if v, ok := t.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// Reference builds the gateway reference for an order number.
func Reference(orderNumber string) string {
	return ReferencePrefix + orderNumber
}
