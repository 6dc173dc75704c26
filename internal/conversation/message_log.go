package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrDuplicate is returned when an upstream message id was already logged.
var ErrDuplicate = errors.New("conversation: duplicate message")

const uniqueViolation = "23505"

// MessageLog is the append-only message history backed by database/sql.
type MessageLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageLog(db *sql.DB) *MessageLog {
	if db == nil {
		panic("conversation: sql db required")
	}
	return &MessageLog{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Seen reports whether an upstream message id has been logged.
func (l *MessageLog) Seen(ctx context.Context, upstreamID string) (bool, error) {
	if upstreamID == "" {
		return false, nil
	}
	var exists int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM conversation_messages WHERE upstream_message_id = $1`, upstreamID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversation: check message: %w", err)
	}
	return true, nil
}

// SeenAny returns the subset of upstream ids that are already logged.
func (l *MessageLog) SeenAny(ctx context.Context, upstreamIDs []string) (map[string]bool, error) {
	seen := make(map[string]bool)
	if len(upstreamIDs) == 0 {
		return seen, nil
	}
	rows, err := l.db.QueryContext(ctx, `SELECT upstream_message_id FROM conversation_messages WHERE upstream_message_id = ANY($1)`, pq.Array(upstreamIDs))
	if err != nil {
		return nil, fmt.Errorf("conversation: check messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("conversation: scan message id: %w", err)
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// Append writes msg. A repeated upstream id returns ErrDuplicate and leaves
// the log unchanged.
func (l *MessageLog) Append(ctx context.Context, msg *Message) error {
	if msg.ConversationID == "" {
		return errors.New("conversation: message conversation id required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = l.now()
	}
	if msg.Type == "" {
		msg.Type = "text"
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, direction, message_type, content, media_ref,
			upstream_message_id, intent_detected, ai_confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		ON CONFLICT (upstream_message_id) DO NOTHING
	`, msg.ID, msg.ConversationID, string(msg.Direction), msg.Type, msg.Content, msg.MediaRef,
		msg.UpstreamID, msg.Intent, msg.Confidence, msg.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("conversation: append message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (l *MessageLog) Recent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id::text, conversation_id::text, direction, message_type, content, COALESCE(media_ref, ''),
			COALESCE(upstream_message_id, ''), COALESCE(intent_detected, ''), ai_confidence, created_at
		FROM conversation_messages
		WHERE conversation_id::text = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg        Message
			direction  string
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &direction, &msg.Type, &msg.Content, &msg.MediaRef,
			&msg.UpstreamID, &msg.Intent, &confidence, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		msg.Direction = Direction(direction)
		if confidence.Valid {
			v := confidence.Float64
			msg.Confidence = &v
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
