package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores orders in Postgres.
type Repository struct {
	db     querier
	tracer trace.Tracer
}

func NewRepository(db querier) *Repository {
	if db == nil {
		panic("orders: db required")
	}
	return &Repository{db: db, tracer: otel.Tracer("whatsapp-commerce.internal.orders")}
}

const orderColumns = `id::text, tenant_id::text, order_number, COALESCE(conversation_id::text, ''), customer_name,
	customer_phone, COALESCE(delivery_address, ''), COALESCE(delivery_area, ''), COALESCE(delivery_notes, ''),
	delivery_fee::text, items, subtotal::text, discount_amount::text, total::text, payment_status,
	COALESCE(payment_reference, ''), COALESCE(payment_method, ''), COALESCE(payment_link, ''), paid_at,
	fulfillment_status, COALESCE(tracking_number, ''), shipped_at, delivered_at, source, created_at, updated_at`

// Create inserts a new order.
func (r *Repository) Create(ctx context.Context, o *Order) error {
	ctx, span := r.tracer.Start(ctx, "orders.create")
	defer span.End()

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("orders: marshal items: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO orders (
			id, tenant_id, order_number, conversation_id, customer_name, customer_phone,
			delivery_address, delivery_area, delivery_notes, delivery_fee, items,
			subtotal, discount_amount, total, payment_status, fulfillment_status, source,
			created_at, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			$10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
	`, o.ID, o.TenantID, o.OrderNumber, o.ConversationID, o.CustomerName, o.CustomerPhone,
		o.DeliveryAddress, o.DeliveryArea, o.DeliveryNotes, o.DeliveryFee.String(), items,
		o.Subtotal.String(), o.DiscountAmount.String(), o.Total.String(), o.PaymentStatus, o.FulfillmentStatus, o.Source,
		o.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("orders: insert: %w", err)
	}
	return nil
}

// Get loads an order by id.
func (r *Repository) Get(ctx context.Context, id string) (*Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE id::text = $1`, id)
}

// GetForTenant loads an order only if it belongs to tenantID.
func (r *Repository) GetForTenant(ctx context.Context, tenantID, id string) (*Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE id::text = $1 AND tenant_id::text = $2`, id, tenantID)
}

// FindByOrderNumber resolves an order number.
func (r *Repository) FindByOrderNumber(ctx context.Context, number string) (*Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

// FindByPaymentReference resolves a gateway reference.
func (r *Repository) FindByPaymentReference(ctx context.Context, reference string) (*Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference)
}

// SetPaymentLink records the hosted checkout issued for an order.
func (r *Repository) SetPaymentLink(ctx context.Context, id, link, reference string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET payment_link = $2, payment_reference = $3, updated_at = now()
		WHERE id::text = $1
	`, id, link, reference)
	if err != nil {
		return fmt.Errorf("orders: set payment link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid settles an unpaid order. A second call for the same order returns
// ErrOrderAlreadyPaid and changes nothing.
func (r *Repository) MarkPaid(ctx context.Context, id, reference, method string, paidAt time.Time) (*Order, error) {
	ctx, span := r.tracer.Start(ctx, "orders.mark_paid")
	defer span.End()

	o, err := r.one(ctx, `
		UPDATE orders SET
			payment_status = 'paid',
			payment_reference = COALESCE(NULLIF($2, ''), payment_reference),
			payment_method = $3,
			paid_at = $4,
			updated_at = $4
		WHERE id::text = $1 AND payment_status <> 'paid'
		RETURNING `+orderColumns, id, reference, method, paidAt)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrOrderAlreadyPaid
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return o, nil
}

// SaveFulfillment writes the fulfilment fields of o.
func (r *Repository) SaveFulfillment(ctx context.Context, o *Order) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET
			fulfillment_status = $2,
			tracking_number = NULLIF($3, ''),
			shipped_at = $4,
			delivered_at = $5,
			updated_at = $6
		WHERE id::text = $1
	`, o.ID, o.FulfillmentStatus, o.TrackingNumber, o.ShippedAt, o.DeliveredAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("orders: save fulfillment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	PaymentStatus     string
	FulfillmentStatus string
	Limit             int
	Offset            int
}

// List returns a tenant's orders, newest first.
func (r *Repository) List(ctx context.Context, tenantID string, f ListFilter) ([]*Order, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	where := []string{"tenant_id::text = $1"}
	args := []any{tenantID}
	if f.PaymentStatus != "" {
		args = append(args, f.PaymentStatus)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if f.FulfillmentStatus != "" {
		args = append(args, f.FulfillmentStatus)
		where = append(where, fmt.Sprintf("fulfillment_status = $%d", len(args)))
	}
	args = append(args, limit, offset)
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) one(ctx context.Context, query string, args ...any) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                              Order
		fee, subtotal, discount, total string
		items                          []byte
		paidAt, shippedAt, deliveredAt *time.Time
	)
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &o.ConversationID, &o.CustomerName,
		&o.CustomerPhone, &o.DeliveryAddress, &o.DeliveryArea, &o.DeliveryNotes,
		&fee, &items, &subtotal, &discount, &total, &o.PaymentStatus,
		&o.PaymentReference, &o.PaymentMethod, &o.PaymentLink, &paidAt,
		&o.FulfillmentStatus, &o.TrackingNumber, &shippedAt, &deliveredAt, &o.Source, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("orders: scan: %w", err)
	}
	o.PaidAt, o.ShippedAt, o.DeliveredAt = paidAt, shippedAt, deliveredAt

	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{{fee, &o.DeliveryFee}, {subtotal, &o.Subtotal}, {discount, &o.DiscountAmount}, {total, &o.Total}} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("orders: parse amount %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("orders: unmarshal items: %w", err)
		}
	}
	if o.Items == nil {
		o.Items = []Item{}
	}
	return &o, nil
}
