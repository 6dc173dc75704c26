// Package payments settles orders from gateway notifications.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// Outcomes reported by Reconcile.
const (
	OutcomePaid        = "paid"
	OutcomeUnresolved  = "unresolved"
	OutcomeAlreadyPaid = "already_paid"
)

const defaultMethod = "paystack"

type orderStore interface {
	FindByOrderNumber(ctx context.Context, number string) (*orders.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*orders.Order, error)
	MarkPaid(ctx context.Context, id, reference, method string, paidAt time.Time) (*orders.Order, error)
}

type conversationStore interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	Save(ctx context.Context, conv *conversation.Conversation) error
}

type orderCompleter interface {
	CompleteOrder(conv *conversation.Conversation, orderRef string) conversation.Result
}

type customerNotifier interface {
	Notify(ctx context.Context, order *orders.Order, text string) error
}

// MerchantNotifier tells the shop about a settled order.
type MerchantNotifier interface {
	NotifyOrderPaid(ctx context.Context, order *orders.Order) error
}

// EventSink receives operator-facing events.
type EventSink interface {
	Publish(eventType string, payload any)
}

// Reconciler marks orders paid and closes the linked conversation.
type Reconciler struct {
	orders    orderStore
	convs     conversationStore
	machine   orderCompleter
	locker    conversation.Locker
	customers customerNotifier
	merchant  MerchantNotifier
	sink      EventSink
	metrics   *metrics.CommerceMetrics
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithMerchantNotifier(n MerchantNotifier) ReconcilerOption {
	return func(r *Reconciler) { r.merchant = n }
}

func WithEventSink(s EventSink) ReconcilerOption {
	return func(r *Reconciler) { r.sink = s }
}

func WithMetrics(m *metrics.CommerceMetrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func NewReconciler(orderRepo orderStore, convs conversationStore, machine orderCompleter, locker conversation.Locker, customers customerNotifier, logger *logging.Logger, opts ...ReconcilerOption) *Reconciler {
	if orderRepo == nil {
		panic("payments: order store required")
	}
	if convs == nil {
		panic("payments: conversation store required")
	}
	if machine == nil {
		panic("payments: state machine required")
	}
	if locker == nil {
		locker = conversation.NewKeyedMutex()
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Reconciler{
		orders:    orderRepo,
		convs:     convs,
		machine:   machine,
		locker:    locker,
		customers: customers,
		logger:    logger,
		tracer:    otel.Tracer("whatsapp-commerce.internal.payments"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Reconcile applies one successful payment. Unknown and already-paid orders
// are dropped without error; only transient failures are returned so the
// job can be retried.
func (r *Reconciler) Reconcile(ctx context.Context, evt events.PaymentSucceededV1) (string, error) {
	ctx, span := r.tracer.Start(ctx, "payments.reconcile", trace.WithAttributes(
		attribute.String("payment.reference", evt.Reference),
	))
	defer span.End()

	order, err := r.resolve(ctx, evt)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if order == nil {
		r.logger.Warn("payment for unknown order", "reference", evt.Reference, "order_number", evt.OrderNumber)
		r.metrics.ObservePayment(OutcomeUnresolved)
		return OutcomeUnresolved, nil
	}
	if order.IsPaid() {
		r.logger.Info("payment already applied", "order_number", order.OrderNumber)
		r.metrics.ObservePayment(OutcomeAlreadyPaid)
		return OutcomeAlreadyPaid, nil
	}

	unlock, err := r.locker.Lock(ctx, conversation.LockKey(order.TenantID, order.CustomerPhone))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("payments: lock conversation: %w", err)
	}
	defer unlock()

	method := strings.TrimSpace(evt.Channel)
	if method == "" {
		method = defaultMethod
	}
	paidAt := evt.PaidAt
	if paidAt.IsZero() {
		paidAt = r.now()
	}
	paid, err := r.orders.MarkPaid(ctx, order.ID, evt.Reference, method, paidAt)
	if errors.Is(err, orders.ErrOrderAlreadyPaid) {
		r.metrics.ObservePayment(OutcomeAlreadyPaid)
		return OutcomeAlreadyPaid, nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("payments: mark paid: %w", err)
	}

	r.completeConversation(ctx, paid)
	unlock()

	if r.customers != nil {
		if err := r.customers.Notify(ctx, paid, orders.PaymentReceivedMessage(paid, ChannelLabel(evt.Channel))); err != nil {
			r.logger.Error("failed to send payment confirmation", "error", err, "order_number", paid.OrderNumber)
		}
	}
	if r.merchant != nil {
		if err := r.merchant.NotifyOrderPaid(ctx, paid); err != nil {
			r.logger.Error("failed to email merchant", "error", err, "order_number", paid.OrderNumber)
		}
	}
	if r.sink != nil {
		r.sink.Publish(events.TypeOrderPaid, events.OrderPaidV1{
			TenantID:       paid.TenantID,
			OrderID:        paid.ID,
			OrderNumber:    paid.OrderNumber,
			ConversationID: paid.ConversationID,
			Total:          paid.Total.StringFixed(2),
			Channel:        evt.Channel,
			OccurredAt:     paidAt,
		})
	}

	r.metrics.ObservePayment(OutcomePaid)
	r.logger.Info("order paid", "tenant_id", paid.TenantID, "order_number", paid.OrderNumber, "method", method)
	return OutcomePaid, nil
}

func (r *Reconciler) resolve(ctx context.Context, evt events.PaymentSucceededV1) (*orders.Order, error) {
	if number := strings.TrimSpace(evt.OrderNumber); number != "" {
		order, err := r.orders.FindByOrderNumber(ctx, number)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, fmt.Errorf("payments: find order: %w", err)
		}
	}
	if ref := strings.TrimSpace(evt.Reference); ref != "" {
		order, err := r.orders.FindByPaymentReference(ctx, ref)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, fmt.Errorf("payments: find order by reference: %w", err)
		}
	}
	return nil, nil
}

// completeConversation moves the linked conversation to completed when its
// cart still points at this order. Failures are logged; the payment stands.
func (r *Reconciler) completeConversation(ctx context.Context, order *orders.Order) {
	if order.ConversationID == "" {
		return
	}
	conv, err := r.convs.Get(ctx, order.ConversationID)
	if err != nil {
		r.logger.Error("failed to load conversation for paid order", "error", err, "conversation_id", order.ConversationID)
		return
	}
	ref := order.Reference()
	if conv.CartOrEmpty().OrderRef != ref {
		r.logger.Info("conversation moved on from paid order", "conversation_id", conv.ID, "order_number", order.OrderNumber)
		return
	}
	r.machine.CompleteOrder(conv, ref)
	if err := r.convs.Save(ctx, conv); err != nil {
		r.logger.Error("failed to save completed conversation", "error", err, "conversation_id", conv.ID)
	}
}

var channelLabels = map[string]string{
	"card":          "Card Payment",
	"bank":          "Bank Payment",
	"ussd":          "USSD Payment",
	"bank_transfer": "Bank Transfer",
	"qr":            "QR Code Payment",
	"mobile_money":  "Mobile Money",
}

// ChannelLabel renders a gateway channel for customers.
func ChannelLabel(channel string) string {
	if label, ok := channelLabels[strings.ToLower(strings.TrimSpace(channel))]; ok {
		return label
	}
	return channel
}
