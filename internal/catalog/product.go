package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product id does not resolve.
var ErrNotFound = errors.New("catalog: product not found")

// Product is the read-only view of a tenant catalog entry.
type Product struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	TrackInventory bool            `json:"trackInventory"`
	Quantity       int             `json:"quantity"`
	Active         bool            `json:"active"`
}

// InStock reports whether qty units can be sold.
func (p Product) InStock(qty int) bool {
	return !p.TrackInventory || p.Quantity >= qty
}

// Lookup is the catalog surface the conversation engine reads from.
type Lookup interface {
	FindActiveByTenant(ctx context.Context, tenantID string) ([]Product, error)
	FindByID(ctx context.Context, id string) (*Product, error)
}

// MatchByName resolves free text to one product. A case-insensitive exact
// match wins; otherwise products whose name contains the text, or is contained
// in it, are candidates and the shortest name wins, then alphabetical order,
// then id.
func MatchByName(products []Product, text string) (Product, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Product{}, false
	}

	var candidates []Product
	for _, p := range products {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		if name == needle {
			return p, true
		}
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Product{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if len(a.Name) != len(b.Name) {
			return len(a.Name) < len(b.Name)
		}
		if la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name); la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})
	return candidates[0], true
}

// Suggestions returns up to limit product names in catalog order.
func Suggestions(products []Product, limit int) []string {
	names := make([]string, 0, limit)
	for _, p := range products {
		if len(names) >= limit {
			break
		}
		names = append(names, p.Name)
	}
	return names
}
