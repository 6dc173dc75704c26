// Package orders persists orders created from confirmed chat carts and
// notifies customers as they move through payment and fulfilment.
package orders

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/internal/payments/paystack"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"

	FulfillmentPending   = "pending"
	FulfillmentShipped   = "shipped"
	FulfillmentDelivered = "delivered"
	FulfillmentCancelled = "cancelled"

	SourceWhatsAppAI = "whatsapp_ai"

	defaultCustomerName = "WhatsApp Customer"
)

var (
	ErrNotFound           = errors.New("orders: not found")
	ErrOrderAlreadyPaid   = errors.New("orders: already paid")
	ErrInvalidFulfillment = errors.New("orders: invalid fulfillment status")
	ErrAlreadyDelivered   = errors.New("orders: cannot cancel a delivered order")
)

// Item is a cart line frozen at order time.
type Item struct {
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount"`
	FinalUnitPrice  decimal.Decimal `json:"finalPrice"`
	LineTotal       decimal.Decimal `json:"total"`
}

// Order is a persisted sale. Money fields are naira.
type Order struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	OrderNumber       string          `json:"order_number"`
	ConversationID    string          `json:"conversation_id,omitempty"`
	CustomerName      string          `json:"customer_name"`
	CustomerPhone     string          `json:"customer_phone"`
	DeliveryAddress   string          `json:"delivery_address,omitempty"`
	DeliveryArea      string          `json:"delivery_area,omitempty"`
	DeliveryNotes     string          `json:"delivery_notes,omitempty"`
	DeliveryFee       decimal.Decimal `json:"delivery_fee"`
	Items             []Item          `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	Total             decimal.Decimal `json:"total"`
	PaymentStatus     string          `json:"payment_status"`
	PaymentReference  string          `json:"payment_reference,omitempty"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	PaymentLink       string          `json:"payment_link,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	FulfillmentStatus string          `json:"fulfillment_status"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	ShippedAt         *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	Source            string          `json:"source"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Reference is the gateway reference issued for this order.
func (o *Order) Reference() string {
	return paystack.Reference(o.OrderNumber)
}

// IsPaid reports settled payment.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// FromCart snapshots a confirmed cart into a new pending order.
func FromCart(tenantID, conversationID, customerName, customerPhone string, c *cart.OrderContext, now time.Time) *Order {
	if strings.TrimSpace(customerName) == "" {
		customerName = defaultCustomerName
	}
	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, Item{
			ProductID:       it.ProductID,
			Name:            it.ProductName,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DiscountPercent: it.DiscountPercent,
			FinalUnitPrice:  it.FinalUnitPrice,
			LineTotal:       it.LineTotal,
		})
	}
	return &Order{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		OrderNumber:       NewOrderNumber(now),
		ConversationID:    conversationID,
		CustomerName:      customerName,
		CustomerPhone:     customerPhone,
		DeliveryAddress:   c.DeliveryAddress,
		DeliveryArea:      c.DeliveryArea,
		DeliveryNotes:     c.DeliveryNotes,
		DeliveryFee:       c.DeliveryFee,
		Items:             items,
		Subtotal:          c.Subtotal,
		DiscountAmount:    c.TotalDiscount,
		Total:             c.GrandTotal,
		PaymentStatus:     PaymentPending,
		FulfillmentStatus: FulfillmentPending,
		Source:            SourceWhatsAppAI,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewOrderNumber returns a date-prefixed number built from a UUIDv7: its
// millisecond timestamp followed by 32 random bits, e.g.
// 20261018-019A1F2C3D4E9B8C7A6F.
func NewOrderNumber(now time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return now.UTC().Format("20060102") + "-" + hex[:12] + hex[24:]
}

// ValidFulfillment reports whether status is a settable fulfilment status.
func ValidFulfillment(status string) bool {
	switch status {
	case FulfillmentPending, FulfillmentShipped, FulfillmentDelivered, FulfillmentCancelled:
		return true
	}
	return false
}
