package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderContext is the cart owned by a conversation. Totals are always rebuilt
// from Items by RecalculateTotals after a mutation.
type OrderContext struct {
	Items               []Item          `json:"items"`
	DeliveryAddress     string          `json:"deliveryAddress,omitempty"`
	DeliveryArea        string          `json:"deliveryArea,omitempty"`
	DeliveryNotes       string          `json:"deliveryNotes,omitempty"`
	DeliveryPhone       string          `json:"deliveryPhone,omitempty"`
	SpecialInstructions string          `json:"specialInstructions,omitempty"`
	DeliveryFee         decimal.Decimal `json:"deliveryFee"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TotalDiscount       decimal.Decimal `json:"totalDiscount"`
	GrandTotal          decimal.Decimal `json:"grandTotal"`
	Confirmed           bool            `json:"confirmed"`
	PaymentLink         string          `json:"paymentLink,omitempty"`
	OrderRef            string          `json:"orderRef,omitempty"`
}

// New returns an empty cart.
func New() *OrderContext {
	return &OrderContext{Items: []Item{}}
}

// Clone returns a deep copy so callers can mutate speculatively.
func (c *OrderContext) Clone() *OrderContext {
	if c == nil {
		return New()
	}
	out := *c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	return &out
}

// AddItem merges into an existing line with the same product, otherwise
// appends the item.
func (c *OrderContext) AddItem(item Item) {
	for idx := range c.Items {
		existing := &c.Items[idx]
		if existing.ProductID != "" && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.CalculateTotals()
			c.RecalculateTotals()
			return
		}
	}
	item.CalculateTotals()
	c.Items = append(c.Items, item)
	c.RecalculateTotals()
}

// UpdateItemQuantity sets the quantity of the line at index; qty <= 0 removes
// it. Out of range indexes are ignored.
func (c *OrderContext) UpdateItemQuantity(index, qty int) {
	if !c.validIndex(index) {
		return
	}
	if qty <= 0 {
		c.Items = append(c.Items[:index], c.Items[index+1:]...)
	} else {
		c.Items[index].Quantity = qty
		c.Items[index].CalculateTotals()
	}
	c.RecalculateTotals()
}

// SetItemDiscount replaces the discount on one line.
func (c *OrderContext) SetItemDiscount(index int, percent decimal.Decimal) {
	if !c.validIndex(index) {
		return
	}
	c.Items[index].DiscountPercent = percent
	c.Items[index].CalculateTotals()
	c.RecalculateTotals()
}

// RemoveItem drops the line at index.
func (c *OrderContext) RemoveItem(index int) {
	if !c.validIndex(index) {
		return
	}
	c.Items = append(c.Items[:index], c.Items[index+1:]...)
	c.RecalculateTotals()
}

// Clear empties the item list and zeroes the item totals. Delivery details are
// left for the caller to reset.
func (c *OrderContext) Clear() {
	c.Items = []Item{}
	c.RecalculateTotals()
}

// SetDeliveryFee stores fee and rebuilds totals.
func (c *OrderContext) SetDeliveryFee(fee decimal.Decimal) {
	c.DeliveryFee = fee
	c.RecalculateTotals()
}

// RecalculateTotals rebuilds Subtotal, TotalDiscount and GrandTotal from the
// line totals. Lines are rounded individually before summation.
func (c *OrderContext) RecalculateTotals() {
	subtotal := decimal.Zero
	discount := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.LineTotal)
		if item.DiscountPercent.IsPositive() {
			discount = discount.Add(item.GrossTotal().Sub(item.LineTotal))
		}
	}
	c.Subtotal = subtotal
	c.TotalDiscount = discount
	c.GrandTotal = subtotal.Add(c.DeliveryFee)
}

func (c *OrderContext) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// IsReadyForConfirmation reports a non-empty cart with a delivery address.
func (c *OrderContext) IsReadyForConfirmation() bool {
	return !c.IsEmpty() && strings.TrimSpace(c.DeliveryAddress) != ""
}

func (c *OrderContext) TotalItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// LastIndex returns the index of the most recently added line or -1.
func (c *OrderContext) LastIndex() int {
	return len(c.Items) - 1
}

// Summary renders the numbered cart shown to customers.
func (c *OrderContext) Summary() string {
	if c.IsEmpty() {
		return "Your cart is empty."
	}

	var sb strings.Builder
	sb.WriteString("*Your Order:*\n\n")
	for idx, item := range c.Items {
		fmt.Fprintf(&sb, "%d. %s x%d - NGN %s\n", idx+1, item.ProductName, item.Quantity, WholeUnits(item.LineTotal))
	}

	sb.WriteString("\n*Subtotal:* NGN " + WholeUnits(c.Subtotal))
	if c.TotalDiscount.IsPositive() {
		sb.WriteString("\n*Discount:* -NGN " + WholeUnits(c.TotalDiscount))
	}
	if c.DeliveryFee.IsPositive() {
		sb.WriteString("\n*Delivery:* NGN " + WholeUnits(c.DeliveryFee))
	}
	sb.WriteString("\n\n*Total:* NGN " + WholeUnits(c.GrandTotal))
	return sb.String()
}

func (c *OrderContext) validIndex(index int) bool {
	return c != nil && index >= 0 && index < len(c.Items)
}
