package orders

import (
	"strings"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
)

// PaymentLinkUnavailable replaces the link when the gateway call fails.
const PaymentLinkUnavailable = "Payment link unavailable - contact us for payment options"

const (
	msgEmptyCart      = "Cannot create order - cart is empty"
	msgNotConfirmed   = "Order has not been confirmed yet"
	msgCreationFailed = "Sorry, there was an error processing your order. Please try again."
)

// ConfirmationMessage is sent once the order exists and a link was attempted.
func ConfirmationMessage(o *Order, c *cart.OrderContext, paymentLink string) string {
	var sb strings.Builder
	sb.WriteString("*Order Confirmed!*\n\n")
	sb.WriteString("Order #: " + o.Reference() + "\n\n")
	sb.WriteString(c.Summary() + "\n\n")
	if c.DeliveryAddress != "" {
		sb.WriteString("*Delivery to:* " + c.DeliveryAddress + "\n\n")
	}
	if strings.HasPrefix(paymentLink, "http") {
		sb.WriteString("Please complete your payment using this secure link:\n")
		sb.WriteString(paymentLink + "\n\n")
		sb.WriteString("You can pay with card or bank transfer. ")
	} else {
		sb.WriteString("Please contact us for payment options.\n\n")
	}
	sb.WriteString("We'll start preparing your order once payment is confirmed!")
	return sb.String()
}

// PaymentReceivedMessage thanks the customer after settlement. channelLabel
// may be empty.
func PaymentReceivedMessage(o *Order, channelLabel string) string {
	var sb strings.Builder
	sb.WriteString("*Payment Confirmed!*\n\n")
	sb.WriteString("Thank you for your payment. Your order is now being processed.\n\n")
	sb.WriteString("*Order Details:*\n")
	sb.WriteString("Order #: " + o.Reference() + "\n")
	sb.WriteString("Amount Paid: ₦" + cart.Grouped(o.Total, 2) + "\n")
	if channelLabel != "" {
		sb.WriteString("Payment Method: " + channelLabel + "\n")
	}
	sb.WriteString("\n*Delivery Address:*\n")
	sb.WriteString(o.DeliveryAddress + "\n\n")
	sb.WriteString("We'll notify you when your order is shipped.\n\n")
	sb.WriteString("If you have any questions, please reply to this chat.")
	return sb.String()
}

// StatusMessage tells the customer about a fulfilment change.
func StatusMessage(o *Order, status string) string {
	var sb strings.Builder
	number := o.Reference()
	switch strings.ToLower(status) {
	case FulfillmentShipped:
		sb.WriteString("*Your Order Has Been Shipped!*\n\n")
		sb.WriteString("Great news! Your order is on its way.\n\n")
		sb.WriteString("Order #: " + number + "\n")
		if o.TrackingNumber != "" {
			sb.WriteString("Tracking #: " + o.TrackingNumber + "\n")
		}
		sb.WriteString("\n*Delivery Address:*\n")
		sb.WriteString(o.DeliveryAddress + "\n\n")
		sb.WriteString("You'll receive another notification when it's delivered.")
	case FulfillmentDelivered:
		sb.WriteString("*Order Delivered!*\n\n")
		sb.WriteString("Your order has been successfully delivered!\n\n")
		sb.WriteString("Order #: " + number + "\n\n")
		sb.WriteString("Thank you for shopping with us!\n")
		sb.WriteString("We'd love to hear about your experience. ")
		sb.WriteString("Feel free to reply to this chat with any feedback.")
	case FulfillmentCancelled:
		sb.WriteString("*Order Cancelled*\n\n")
		sb.WriteString("Your order has been cancelled.\n\n")
		sb.WriteString("Order #: " + number + "\n\n")
		sb.WriteString("If you have any questions or if this was a mistake, ")
		sb.WriteString("please reply to this chat and we'll help you out.")
	default:
		sb.WriteString("*Order Update*\n\n")
		sb.WriteString("Your order status has been updated to: " + status + "\n\n")
		sb.WriteString("Order #: " + number + "\n\n")
		sb.WriteString("If you have any questions, please reply to this chat.")
	}
	return sb.String()
}
