package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type channelLookup interface {
	ChannelForTenant(ctx context.Context, tenantID string) (*tenant.Channel, error)
}

// MerchantNotifier emails the shop owner when an order is paid.
type MerchantNotifier struct {
	sender     EmailSender
	channels   channelLookup
	fallbackTo string
	logger     *logging.Logger
}

type MerchantOption func(*MerchantNotifier)

// WithFallbackRecipient is used when the tenant has no notification email.
func WithFallbackRecipient(email string) MerchantOption {
	return func(n *MerchantNotifier) { n.fallbackTo = strings.TrimSpace(email) }
}

func NewMerchantNotifier(sender EmailSender, channels channelLookup, logger *logging.Logger, opts ...MerchantOption) *MerchantNotifier {
	if sender == nil {
		panic("notify: email sender required")
	}
	if channels == nil {
		panic("notify: channel lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	n := &MerchantNotifier{sender: sender, channels: channels, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyOrderPaid sends the "new paid order" email. Tenants without a
// recipient are skipped.
func (n *MerchantNotifier) NotifyOrderPaid(ctx context.Context, o *orders.Order) error {
	if o == nil {
		return errors.New("notify: order required")
	}
	to, shop := n.fallbackTo, ""
	ch, err := n.channels.ChannelForTenant(ctx, o.TenantID)
	switch {
	case err == nil:
		if ch.NotificationEmail != "" {
			to = ch.NotificationEmail
		}
		shop = ch.BusinessName
	case errors.Is(err, tenant.ErrUnknownChannel):
	default:
		return fmt.Errorf("notify: resolve tenant channel: %w", err)
	}
	if to == "" {
		n.logger.Debug("no merchant email configured", "tenant_id", o.TenantID)
		return nil
	}

	if err := n.sender.Send(ctx, EmailMessage{
		To:      to,
		ToName:  shop,
		Subject: fmt.Sprintf("New paid order %s (₦%s)", o.Reference(), cart.Grouped(o.Total, 2)),
		Body:    OrderPaidBody(o),
	}); err != nil {
		return fmt.Errorf("notify: send order paid email: %w", err)
	}
	n.logger.Info("merchant notified of paid order", "tenant_id", o.TenantID, "order_number", o.OrderNumber)
	return nil
}

// OrderPaidBody is the plain-text email body for a settled order.
func OrderPaidBody(o *orders.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Order %s has been paid.\n\n", o.Reference())
	fmt.Fprintf(&sb, "Customer: %s (+%s)\n", strings.TrimSpace(o.CustomerName), o.CustomerPhone)
	if o.PaymentMethod != "" {
		fmt.Fprintf(&sb, "Payment method: %s\n", o.PaymentMethod)
	}
	sb.WriteString("\nItems:\n")
	for _, item := range o.Items {
		fmt.Fprintf(&sb, "- %dx %s: ₦%s\n", item.Quantity, item.Name, cart.Grouped(item.LineTotal, 2))
	}
	if o.DeliveryFee.IsPositive() {
		fmt.Fprintf(&sb, "Delivery: ₦%s\n", cart.Grouped(o.DeliveryFee, 2))
	}
	fmt.Fprintf(&sb, "Total: ₦%s\n", cart.Grouped(o.Total, 2))
	if o.DeliveryAddress != "" {
		fmt.Fprintf(&sb, "\nDeliver to: %s\n", o.DeliveryAddress)
		if o.DeliveryNotes != "" {
			fmt.Fprintf(&sb, "Notes: %s\n", o.DeliveryNotes)
		}
	}
	return sb.String()
}
