package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads products from Postgres.
type Repository struct {
	db querier
}

var _ Lookup = (*Repository)(nil)

func NewRepository(db querier) *Repository {
	if db == nil {
		panic("catalog: db required")
	}
	return &Repository{db: db}
}

const productColumns = `id::text, tenant_id::text, name, COALESCE(description, ''), price::text, track_inventory, quantity, is_active`

// FindActiveByTenant lists active products ordered by name.
func (r *Repository) FindActiveByTenant(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY name ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate products: %w", err)
	}
	return out, nil
}

// FindByID returns ErrNotFound when the id is unknown.
func (r *Repository) FindByID(ctx context.Context, id string) (*Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id::text = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &price, &p.TrackInventory, &p.Quantity, &p.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("catalog: scan product: %w", err)
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: parse price %q: %w", price, err)
	}
	p.Price = parsed
	return p, nil
}
