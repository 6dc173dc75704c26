package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/payments/paystack"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type store interface {
	Create(ctx context.Context, o *Order) error
	SetPaymentLink(ctx context.Context, id, link, reference string) error
	GetForTenant(ctx context.Context, tenantID, id string) (*Order, error)
	SaveFulfillment(ctx context.Context, o *Order) error
	List(ctx context.Context, tenantID string, f ListFilter) ([]*Order, error)
}

// CheckoutCreator issues hosted payment pages.
type CheckoutCreator interface {
	Initialize(ctx context.Context, params paystack.InitializeParams) (*paystack.Checkout, error)
}

// Service turns confirmed carts into orders and keeps customers informed.
type Service struct {
	orders      store
	gateway     CheckoutCreator
	messenger   messaging.ReplyMessenger
	payerDomain string
	metrics     *metrics.CommerceMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithPayerDomain sets the domain of the placeholder payer email sent to the
// gateway, since chat customers have no email on file.
func WithPayerDomain(domain string) Option {
	return func(s *Service) {
		if d := strings.TrimSpace(domain); d != "" {
			s.payerDomain = d
		}
	}
}

func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(orders store, gateway CheckoutCreator, messenger messaging.ReplyMessenger, logger *logging.Logger, opts ...Option) *Service {
	if orders == nil {
		panic("orders: store required")
	}
	if messenger == nil {
		panic("orders: messenger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		orders:      orders,
		gateway:     gateway,
		messenger:   messenger,
		payerDomain: "customers.whatsapp-commerce.ng",
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult reports the outcome of CreateFromConversation. Message is
// customer-facing text: the confirmation that was sent on success, or the
// reason the order could not be created.
type CreateResult struct {
	Success     bool
	Order       *Order
	PaymentLink string
	Message     string
}

// CreateFromConversation persists an order for a confirmed cart, requests a
// payment link and sends the confirmation. On success the conversation's cart
// carries the link and order reference and conv.OrderID is set; the caller
// owns saving conv.
func (s *Service) CreateFromConversation(ctx context.Context, conv *conversation.Conversation) (CreateResult, error) {
	c := conv.CartOrEmpty()
	if c.IsEmpty() {
		return CreateResult{Message: msgEmptyCart}, nil
	}
	if !c.Confirmed {
		return CreateResult{Message: msgNotConfirmed}, nil
	}

	order := FromCart(conv.TenantID, conv.ID, conv.CustomerName, conv.CustomerAddress, c, s.now())
	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.Error("failed to create order from conversation", "error", err, "conversation_id", conv.ID)
		return CreateResult{Message: msgCreationFailed}, fmt.Errorf("orders: create from conversation: %w", err)
	}

	link := s.paymentLink(ctx, order, conv)
	s.metrics.ObserveOrderCreated(order.PaymentLink != "")

	next := c.Clone()
	next.PaymentLink = link
	next.OrderRef = order.Reference()
	conv.Cart = next
	conv.OrderID = order.ID

	msg := ConfirmationMessage(order, next, link)
	if _, err := s.messenger.SendReply(ctx, messaging.OutboundReply{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		To:             conv.CustomerAddress,
		Body:           msg,
	}); err != nil {
		s.logger.Warn("order confirmation not delivered", "error", err, "order_number", order.OrderNumber)
	}
	s.logger.Info("created order from conversation", "order_number", order.OrderNumber, "conversation_id", conv.ID, "tenant_id", conv.TenantID)
	return CreateResult{Success: true, Order: order, PaymentLink: link, Message: msg}, nil
}

// paymentLink never fails: a gateway error yields PaymentLinkUnavailable.
func (s *Service) paymentLink(ctx context.Context, order *Order, conv *conversation.Conversation) string {
	if s.gateway == nil {
		return PaymentLinkUnavailable
	}
	checkout, err := s.gateway.Initialize(ctx, paystack.InitializeParams{
		Reference:    order.Reference(),
		Amount:       order.Total,
		Email:        s.payerEmail(conv),
		CustomerName: order.CustomerName,
		Metadata: map[string]string{
			"order_id":        order.ID,
			"order_number":    order.OrderNumber,
			"tenant_id":       order.TenantID,
			"conversation_id": conv.ID,
		},
	})
	if err != nil {
		s.logger.Warn("failed to create payment link", "error", err, "order_number", order.OrderNumber)
		return PaymentLinkUnavailable
	}
	if err := s.orders.SetPaymentLink(ctx, order.ID, checkout.AuthorizationURL, order.Reference()); err != nil {
		s.logger.Warn("failed to store payment link", "error", err, "order_number", order.OrderNumber)
	} else {
		order.PaymentLink = checkout.AuthorizationURL
		order.PaymentReference = order.Reference()
	}
	return checkout.AuthorizationURL
}

func (s *Service) payerEmail(conv *conversation.Conversation) string {
	local := messaging.NormalizeWhatsAppID(conv.CustomerAddress)
	if local == "" {
		local = "customer"
	}
	return "wa" + local + "@" + s.payerDomain
}

// UpdateFulfillment moves an order to shipped, delivered or cancelled and
// notifies the customer. Notification failures are logged only.
func (s *Service) UpdateFulfillment(ctx context.Context, tenantID, orderID, status, tracking string) (*Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !ValidFulfillment(status) {
		return nil, ErrInvalidFulfillment
	}
	order, err := s.orders.GetForTenant(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if status == FulfillmentCancelled && order.FulfillmentStatus == FulfillmentDelivered {
		return nil, ErrAlreadyDelivered
	}

	now := s.now()
	order.FulfillmentStatus = status
	switch status {
	case FulfillmentShipped:
		order.ShippedAt = &now
		if t := strings.TrimSpace(tracking); t != "" {
			order.TrackingNumber = t
		}
	case FulfillmentDelivered:
		order.DeliveredAt = &now
	}
	order.UpdatedAt = now
	if err := s.orders.SaveFulfillment(ctx, order); err != nil {
		return nil, err
	}

	if status != FulfillmentPending {
		s.notify(ctx, order, StatusMessage(order, status))
	}
	s.logger.Info("order fulfillment updated", "order_number", order.OrderNumber, "status", status)
	return order, nil
}

// List returns a tenant's orders.
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) ([]*Order, error) {
	return s.orders.List(ctx, tenantID, f)
}

// Get returns one of a tenant's orders.
func (s *Service) Get(ctx context.Context, tenantID, orderID string) (*Order, error) {
	return s.orders.GetForTenant(ctx, tenantID, orderID)
}

// Notify sends text about order to its customer, logging it against the
// linked conversation.
func (s *Service) Notify(ctx context.Context, order *Order, text string) error {
	if strings.TrimSpace(order.CustomerPhone) == "" {
		return errors.New("orders: order has no customer phone")
	}
	_, err := s.messenger.SendReply(ctx, messaging.OutboundReply{
		TenantID:       order.TenantID,
		ConversationID: order.ConversationID,
		To:             order.CustomerPhone,
		Body:           text,
	})
	return err
}

func (s *Service) notify(ctx context.Context, order *Order, text string) {
	if err := s.Notify(ctx, order, text); err != nil {
		s.logger.Error("failed to notify customer", "error", err, "order_number", order.OrderNumber)
	}
}
