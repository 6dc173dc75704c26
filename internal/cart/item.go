package cart

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Item is one line of an order context. Derived fields are only valid after
// CalculateTotals.
type Item struct {
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	FinalUnitPrice  decimal.Decimal `json:"finalUnitPrice"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
	Notes           string          `json:"notes,omitempty"`
}

// NewItem builds a line with its totals already computed.
func NewItem(productID, name string, quantity int, unitPrice decimal.Decimal) Item {
	item := Item{
		ProductID:   productID,
		ProductName: name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
	item.CalculateTotals()
	return item
}

// CalculateTotals recomputes FinalUnitPrice and LineTotal.
// final = round(unit * (1 - discount/100), 2), with the discount factor held at
// 4 places; line = round(final * qty, 2). Rounding is half-up.
func (i *Item) CalculateTotals() {
	if i.DiscountPercent.IsPositive() {
		factor := one.Sub(i.DiscountPercent.DivRound(hundred, 4))
		i.FinalUnitPrice = i.UnitPrice.Mul(factor).Round(2)
	} else {
		i.FinalUnitPrice = i.UnitPrice
	}
	i.LineTotal = i.FinalUnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// GrossTotal is the undiscounted unit price times quantity.
func (i Item) GrossTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
