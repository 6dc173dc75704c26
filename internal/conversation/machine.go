package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

const (
	DefaultHandoffReason = "Customer requested human assistance"

	msgCannotAdd        = "Cannot add items in the current state. Please complete or cancel your current order first."
	msgProductNotFound  = "Sorry, I couldn't find that product."
	msgWrongStore       = "This product is not available from this store."
	msgBadQuantity      = "Please tell me how many you would like (at least 1)."
	msgItemNotFound     = "Item not found in cart."
	msgCartFrozen       = "Your order is already being processed and can no longer be changed."
	msgPricesFixed      = "Sorry, our prices are fixed and we cannot offer discounts."
	msgCartEmpty        = "Your cart is empty. Please add some items first!"
	msgAddressMissing   = "Please provide your delivery address first."
	msgReviewFirst      = "Please review your order first before confirming."
	msgOrderConfirmed   = "Order confirmed! I'll send you a payment link shortly."
	msgOrderCancelled   = "Your order has been cancelled. Is there anything else I can help you with?"
	msgAskAddress       = "Please provide your delivery address and I'll calculate the delivery fee."
	msgConfirmCallToAct = "Please confirm this order by saying *YES* or *CONFIRM*."
	msgHandoff          = "Let me connect you with our team. Someone will respond shortly!"
	msgAlreadyClosed    = "This conversation is already closed."
	msgAlreadyPaid      = "Your order has already been paid, so it can no longer be cancelled."

	suggestionLimit = 5
)

// Result is the outcome of one machine operation. A failed operation leaves
// the conversation untouched and carries a chat-ready Message.
type Result struct {
	Success             bool
	Message             string
	NewState            State
	Cart                *cart.OrderContext
	RequiresPaymentLink bool
}

func fail(msg string) Result {
	return Result{Success: false, Message: msg}
}

// Machine applies sales transitions to a Conversation in memory. Callers
// persist the conversation afterwards while holding its lock.
type Machine struct {
	catalog catalog.Lookup
	now     func() time.Time
}

func NewMachine(lookup catalog.Lookup) *Machine {
	if lookup == nil {
		panic("conversation: catalog lookup required")
	}
	return &Machine{catalog: lookup, now: func() time.Time { return time.Now().UTC() }}
}

// commit swaps in the mutated cart and state together.
func commit(conv *Conversation, next *cart.OrderContext, state State, msg string) Result {
	conv.Cart = next
	conv.State = state
	return Result{Success: true, Message: msg, NewState: state, Cart: next}
}

// AddToCart adds qty units of the product identified by productID.
func (m *Machine) AddToCart(ctx context.Context, conv *Conversation, productID string, qty int) (Result, error) {
	if !conv.State.CanAddToCart() {
		return fail(msgCannotAdd), nil
	}
	if qty <= 0 {
		return fail(msgBadQuantity), nil
	}
	product, err := m.catalog.FindByID(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		return fail(msgProductNotFound), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("conversation: find product: %w", err)
	}
	if !product.Active {
		return fail(msgProductNotFound), nil
	}
	if product.TenantID != conv.TenantID {
		return fail(msgWrongStore), nil
	}

	current := conv.CartOrEmpty()
	inCart := 0
	for _, item := range current.Items {
		if item.ProductID == product.ID {
			inCart += item.Quantity
		}
	}
	if !product.InStock(inCart + qty) {
		available := product.Quantity - inCart
		if available < 0 {
			available = 0
		}
		return fail(fmt.Sprintf("Sorry, we only have %d of %s in stock.", available, product.Name)), nil
	}

	next := current.Clone()
	next.AddItem(cart.NewItem(product.ID, product.Name, qty, product.Price))
	return commit(conv, next, StateAddingToCart, fmt.Sprintf("Added %dx %s to your cart!", qty, product.Name)), nil
}

// AddToCartByName resolves free text against the tenant's active catalog.
func (m *Machine) AddToCartByName(ctx context.Context, conv *Conversation, name string, qty int) (Result, error) {
	products, err := m.catalog.FindActiveByTenant(ctx, conv.TenantID)
	if err != nil {
		return Result{}, fmt.Errorf("conversation: list products: %w", err)
	}
	match, ok := catalog.MatchByName(products, name)
	if !ok {
		var sb strings.Builder
		fmt.Fprintf(&sb, "I couldn't find \"%s\". ", strings.TrimSpace(name))
		if suggestions := catalog.Suggestions(products, suggestionLimit); len(suggestions) > 0 {
			sb.WriteString("Here are our available products:\n")
			for _, s := range suggestions {
				sb.WriteString("- " + s + "\n")
			}
		}
		return fail(sb.String()), nil
	}
	return m.AddToCart(ctx, conv, match.ID, qty)
}

// UpdateCartItemQuantity sets the quantity of line index. A quantity of zero
// or less removes the line.
func (m *Machine) UpdateCartItemQuantity(ctx context.Context, conv *Conversation, index, qty int) (Result, error) {
	if conv.State.cartFrozen() {
		return fail(msgCartFrozen), nil
	}
	current := conv.CartOrEmpty()
	if index < 0 || index >= len(current.Items) {
		return fail(msgItemNotFound), nil
	}
	if qty <= 0 {
		return m.RemoveCartItem(conv, index), nil
	}

	item := current.Items[index]
	product, err := m.catalog.FindByID(ctx, item.ProductID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
	case err != nil:
		return Result{}, fmt.Errorf("conversation: find product: %w", err)
	case !product.InStock(qty):
		return fail(fmt.Sprintf("Sorry, we only have %d of %s available.", product.Quantity, item.ProductName)), nil
	}

	next := current.Clone()
	next.UpdateItemQuantity(index, qty)
	return commit(conv, next, conv.State, fmt.Sprintf("Updated %s quantity to %d.", item.ProductName, qty)), nil
}

// RemoveCartItem drops line index. An emptied cart returns the conversation
// to browsing.
func (m *Machine) RemoveCartItem(conv *Conversation, index int) Result {
	if conv.State.cartFrozen() {
		return fail(msgCartFrozen)
	}
	current := conv.CartOrEmpty()
	if index < 0 || index >= len(current.Items) {
		return fail(msgItemNotFound)
	}
	name := current.Items[index].ProductName
	next := current.Clone()
	next.RemoveItem(index)
	state := conv.State
	if next.IsEmpty() {
		state = StateBrowsing
	}
	return commit(conv, next, state, fmt.Sprintf("Removed %s from your cart.", name))
}

// ApplyDiscount sets a percentage discount on line index within the tenant's
// negotiation policy.
func (m *Machine) ApplyDiscount(conv *Conversation, cfg *tenant.Config, index, percent int) Result {
	if cfg == nil {
		cfg = tenant.DefaultConfig(conv.TenantID)
	}
	if !cfg.NegotiationEnabled {
		return fail(msgPricesFixed)
	}
	if percent > cfg.MaxDiscountPercent {
		return fail(fmt.Sprintf("Sorry, the maximum discount I can offer is %d%%.", cfg.MaxDiscountPercent))
	}
	if percent < 0 {
		return fail("Sorry, that is not a valid discount.")
	}
	if conv.State.cartFrozen() {
		return fail(msgCartFrozen)
	}
	current := conv.CartOrEmpty()
	if index < 0 || index >= len(current.Items) {
		return fail(msgItemNotFound)
	}
	next := current.Clone()
	next.SetItemDiscount(index, decimal.NewFromInt(int64(percent)))
	return commit(conv, next, conv.State, fmt.Sprintf("Applied %d%% discount to %s!", percent, next.Items[index].ProductName))
}

// SetDeliveryAddress records where to deliver and prices delivery for area.
func (m *Machine) SetDeliveryAddress(conv *Conversation, cfg *tenant.Config, address, area string) Result {
	if conv.State.cartFrozen() {
		return fail(msgCartFrozen)
	}
	current := conv.CartOrEmpty()
	if current.IsEmpty() {
		return fail(msgCartEmpty)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return fail(msgAddressMissing)
	}
	fee := decimal.Zero
	if cfg != nil {
		fee = cfg.DeliveryFeeFor(area)
	}
	next := current.Clone()
	next.DeliveryAddress = address
	next.DeliveryArea = strings.TrimSpace(area)
	next.SetDeliveryFee(fee)
	return commit(conv, next, StateCollectingAddress, "Delivery address set to: "+address)
}

// RequestAddress moves a non-empty cart to address collection.
func (m *Machine) RequestAddress(conv *Conversation) Result {
	if !conv.State.CanAddToCart() {
		return fail(msgCannotAdd)
	}
	current := conv.CartOrEmpty()
	if current.IsEmpty() {
		return fail(msgCartEmpty)
	}
	return commit(conv, current, StateCollectingAddress, msgAskAddress)
}

// PrepareForConfirmation renders the order for the customer to approve.
func (m *Machine) PrepareForConfirmation(conv *Conversation) Result {
	if conv.State.cartFrozen() {
		return fail(msgCartFrozen)
	}
	current := conv.CartOrEmpty()
	if current.IsEmpty() {
		return fail(msgCartEmpty)
	}
	if !current.IsReadyForConfirmation() {
		return fail(msgAddressMissing)
	}
	msg := current.Summary() + "\n\n*Delivery to:* " + current.DeliveryAddress + "\n\n" + msgConfirmCallToAct
	return commit(conv, current, StateConfirmingOrder, msg)
}

// ConfirmOrder is only valid while the customer is reviewing the order. On
// success the caller must create the order and payment link.
func (m *Machine) ConfirmOrder(conv *Conversation) Result {
	if conv.State != StateConfirmingOrder {
		return fail(msgReviewFirst)
	}
	next := conv.CartOrEmpty().Clone()
	next.Confirmed = true
	res := commit(conv, next, StateAwaitingPayment, msgOrderConfirmed)
	res.RequiresPaymentLink = true
	return res
}

// ReopenConfirmation undoes ConfirmOrder when no order could be created, so
// the customer can confirm again. It is a no-op once an order reference exists.
func (m *Machine) ReopenConfirmation(conv *Conversation) Result {
	current := conv.CartOrEmpty()
	if conv.State != StateAwaitingPayment || current.OrderRef != "" {
		return fail(msgReviewFirst)
	}
	next := current.Clone()
	next.Confirmed = false
	return commit(conv, next, StateConfirmingOrder, msgConfirmCallToAct)
}

// CancelOrder clears the cart and delivery details. A paid cart is kept.
func (m *Machine) CancelOrder(conv *Conversation) Result {
	if conv.State == StateCompleted {
		return fail(msgAlreadyPaid)
	}
	next := conv.CartOrEmpty().Clone()
	next.Clear()
	next.Confirmed = false
	next.DeliveryAddress = ""
	next.DeliveryArea = ""
	next.PaymentLink = ""
	next.OrderRef = ""
	next.SetDeliveryFee(decimal.Zero)
	return commit(conv, next, StateBrowsing, msgOrderCancelled)
}

// CompleteOrder records a paid order against the conversation.
func (m *Machine) CompleteOrder(conv *Conversation, orderRef string) Result {
	next := conv.CartOrEmpty().Clone()
	next.OrderRef = orderRef
	conv.Outcome = OutcomeConverted
	conv.Active = false
	return commit(conv, next, StateCompleted, "Payment received! Thank you for your order. Your order number is "+orderRef)
}

// HandOff stops automation and flags the conversation for a human.
func (m *Machine) HandOff(conv *Conversation, reason string) Result {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultHandoffReason
	}
	now := m.now()
	conv.HandedOff = true
	conv.HandedOffReason = reason
	conv.HandedOffAt = &now
	return commit(conv, conv.CartOrEmpty(), StateHandedOff, msgHandoff)
}

// Abandon closes an idle conversation.
func (m *Machine) Abandon(conv *Conversation) Result {
	if conv.State.IsTerminal() {
		return fail(msgAlreadyClosed)
	}
	conv.Outcome = OutcomeAbandoned
	conv.Active = false
	return commit(conv, conv.CartOrEmpty(), StateAbandoned, "Conversation closed after inactivity.")
}
