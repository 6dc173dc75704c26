package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type messageAppender interface {
	Append(ctx context.Context, msg *conversation.Message) error
}

// PersistingMessenger logs every delivered reply as an outbound message of
// its conversation.
type PersistingMessenger struct {
	inner  ReplyMessenger
	log    messageAppender
	logger *logging.Logger
}

// WrapWithPersistence returns messenger unchanged when log is nil.
func WrapWithPersistence(messenger ReplyMessenger, log messageAppender, logger *logging.Logger) ReplyMessenger {
	if log == nil {
		return messenger
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PersistingMessenger{inner: messenger, log: log, logger: logger}
}

// SendReply sends first. Undelivered replies are not logged, and a failed log
// write does not fail the send.
func (p *PersistingMessenger) SendReply(ctx context.Context, reply OutboundReply) (string, error) {
	id, err := p.inner.SendReply(ctx, reply)
	if err != nil {
		return "", err
	}
	if reply.ConversationID == "" {
		return id, nil
	}
	msg := &conversation.Message{
		ConversationID: reply.ConversationID,
		Direction:      conversation.DirectionOutbound,
		Type:           "text",
		Content:        reply.Body,
		UpstreamID:     id,
	}
	if logErr := p.log.Append(ctx, msg); logErr != nil && !errors.Is(logErr, conversation.ErrDuplicate) {
		p.logger.Warn("failed to persist outbound message", "error", logErr, "conversation_id", reply.ConversationID)
	}
	return id, nil
}
