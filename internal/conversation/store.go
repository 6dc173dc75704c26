package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotFound is returned when a conversation id does not resolve.
	ErrNotFound = errors.New("conversation: not found")
	// ErrConcurrentUpdate means another writer saved the row first.
	ErrConcurrentUpdate = errors.New("conversation: concurrent update")
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists conversations in Postgres. State and cart live on the same
// row and are written by one UPDATE.
type Store struct {
	db     db
	tracer trace.Tracer
	now    func() time.Time
}

func NewStore(pool db) *Store {
	if pool == nil {
		panic("conversation: db required")
	}
	return &Store{
		db:     pool,
		tracer: otel.Tracer("whatsapp-commerce.internal.conversation.store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const conversationColumns = `id::text, tenant_id::text, customer_address, COALESCE(customer_name, ''), state,
	context, cart, is_active, is_handed_off, COALESCE(handed_off_reason, ''), handed_off_at,
	COALESCE(outcome, ''), COALESCE(order_id::text, ''), message_count, last_message_at, version,
	created_at, updated_at`

// GetOrCreate returns the conversation for (tenant, address), creating it
// when the address has never written before. The bool reports creation.
func (s *Store) GetOrCreate(ctx context.Context, tenantID, address, name string) (*Conversation, bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.get_or_create")
	defer span.End()

	fresh := New(tenantID, address, name, s.now())
	cartJSON, err := json.Marshal(fresh.Cart)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: marshal cart: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, tenant_id, customer_address, customer_name, state, context, cart,
			is_active, message_count, last_message_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, '{}'::jsonb, $6, true, 0, $7, 1, $7, $7)
		ON CONFLICT (tenant_id, customer_address) DO NOTHING
	`, uuid.NewString(), tenantID, address, name, string(StateGreeting), cartJSON, fresh.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("conversation: insert: %w", err)
	}
	created := tag.RowsAffected() > 0

	row := s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE tenant_id = $1 AND customer_address = $2`, tenantID, address)
	conv, err := scanConversation(row)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	return conv, created, nil
}

// Get loads a conversation by id.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.get")
	defer span.End()

	row := s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id::text = $1`, id)
	conv, err := scanConversation(row)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return conv, nil
}

// Save writes the aggregate back. The row is locked with SELECT ... FOR
// UPDATE and the stored version must equal conv.Version.
func (s *Store) Save(ctx context.Context, conv *Conversation) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save")
	defer span.End()

	cartJSON, err := json.Marshal(conv.CartOrEmpty())
	if err != nil {
		return fmt.Errorf("conversation: marshal cart: %w", err)
	}
	contextJSON, err := json.Marshal(contextOrEmpty(conv.Context))
	if err != nil {
		return fmt.Errorf("conversation: marshal context: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int
	if err := tx.QueryRow(ctx, `SELECT version FROM conversations WHERE id::text = $1 FOR UPDATE`, conv.ID).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("conversation: lock row: %w", err)
	}
	if version != conv.Version {
		return ErrConcurrentUpdate
	}

	now := s.now()
	_, err = tx.Exec(ctx, `
		UPDATE conversations SET
			customer_name = NULLIF($2, ''),
			state = $3,
			context = $4,
			cart = $5,
			is_active = $6,
			is_handed_off = $7,
			handed_off_reason = NULLIF($8, ''),
			handed_off_at = $9,
			outcome = NULLIF($10, ''),
			order_id = NULLIF($11, '')::uuid,
			message_count = $12,
			last_message_at = $13,
			version = version + 1,
			updated_at = $14
		WHERE id::text = $1
	`, conv.ID, conv.CustomerName, string(conv.State), contextJSON, cartJSON, conv.Active, conv.HandedOff,
		conv.HandedOffReason, conv.HandedOffAt, conv.Outcome, conv.OrderID, conv.MessageCount, conv.LastMessageAt, now)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: commit: %w", err)
	}
	conv.Version = version + 1
	conv.UpdatedAt = now
	return nil
}

// FindStale lists automated conversations idle since before cutoff.
func (s *Store) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.find_stale")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE is_active = true
		  AND state NOT IN ('completed', 'handed_off', 'abandoned')
		  AND last_message_at < $1
		ORDER BY last_message_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: find stale: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate stale: %w", err)
	}
	return out, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		conv        Conversation
		state       string
		contextJSON []byte
		cartJSON    []byte
		handedOffAt *time.Time
	)
	err := row.Scan(&conv.ID, &conv.TenantID, &conv.CustomerAddress, &conv.CustomerName, &state,
		&contextJSON, &cartJSON, &conv.Active, &conv.HandedOff, &conv.HandedOffReason, &handedOffAt,
		&conv.Outcome, &conv.OrderID, &conv.MessageCount, &conv.LastMessageAt, &conv.Version,
		&conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	conv.State = ParseState(state)
	conv.HandedOffAt = handedOffAt
	conv.Context = map[string]any{}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &conv.Context); err != nil {
			return nil, fmt.Errorf("conversation: decode context: %w", err)
		}
	}
	conv.Cart = cart.New()
	if len(cartJSON) > 0 && string(cartJSON) != "null" {
		if err := json.Unmarshal(cartJSON, conv.Cart); err != nil {
			return nil, fmt.Errorf("conversation: decode cart: %w", err)
		}
		if conv.Cart.Items == nil {
			conv.Cart.Items = []cart.Item{}
		}
	}
	return &conv, nil
}

func contextOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
