// Package archive keeps closed conversation transcripts in S3.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
)

const maxTranscriptMessages = 500

type messageLister interface {
	Recent(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

type transcriptWriter interface {
	PutTranscript(ctx context.Context, record *TranscriptRecord) (string, error)
}

// Archiver builds transcript records from the message log.
type Archiver struct {
	store    transcriptWriter
	messages messageLister
	logger   *slog.Logger
	now      func() time.Time
}

// NewArchiver returns nil when the store is disabled, so callers can hold a
// nil *Archiver.
func NewArchiver(store *Store, messages messageLister, logger *slog.Logger) *Archiver {
	if !store.Enabled() || messages == nil {
		return nil
	}
	return newArchiver(store, messages, logger)
}

func newArchiver(store transcriptWriter, messages messageLister, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		store:    store,
		messages: messages,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Archive writes the transcript of conv. Safe on a nil receiver.
func (a *Archiver) Archive(ctx context.Context, conv *conversation.Conversation) error {
	if a == nil || conv == nil {
		return nil
	}
	history, err := a.messages.Recent(ctx, conv.ID, maxTranscriptMessages)
	if err != nil {
		return fmt.Errorf("archive: load messages: %w", err)
	}
	record := BuildRecord(conv, history, a.now())
	key, err := a.store.PutTranscript(ctx, record)
	if err != nil {
		return err
	}
	a.logger.Debug("transcript archived", "conversation_id", conv.ID, "s3_key", key)
	return nil
}

// BuildRecord converts a conversation and its log into a scrubbed record.
func BuildRecord(conv *conversation.Conversation, history []conversation.Message, now time.Time) *TranscriptRecord {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, Message{
			Direction: string(m.Direction),
			Type:      m.Type,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	scrubMessages(msgs)

	var duration int
	if len(msgs) >= 2 {
		duration = int(msgs[len(msgs)-1].Timestamp.Sub(msgs[0].Timestamp).Seconds())
	}
	c := conv.CartOrEmpty()
	return &TranscriptRecord{
		Version:         recordVersion,
		ConversationID:  conv.ID,
		TenantID:        conv.TenantID,
		CustomerHash:    HashPhone(conv.CustomerAddress),
		State:           conv.State.String(),
		Outcome:         conv.Outcome,
		OrderID:         conv.OrderID,
		HandedOff:       conv.HandedOff,
		StartedAt:       conv.CreatedAt,
		ArchivedAt:      now,
		DurationSeconds: duration,
		MessageCount:    len(msgs),
		Cart: CartSnapshot{
			Items:        c.TotalItemCount(),
			Subtotal:     c.Subtotal.StringFixed(2),
			DeliveryFee:  c.DeliveryFee.StringFixed(2),
			Total:        c.GrandTotal.StringFixed(2),
			DeliveryArea: c.DeliveryArea,
			Confirmed:    c.Confirmed,
		},
		Messages: msgs,
	}
}
