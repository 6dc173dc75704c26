// Package messaging sends customer-facing replies over the tenant's WhatsApp
// channel and records them in the conversation log.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-commerce/internal/messaging/whatsapp"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

var sendTracer = otel.Tracer("whatsapp-commerce.internal.messaging.send")

// OutboundReply is one text message to a customer. ConversationID is optional
// and only used for logging the message.
type OutboundReply struct {
	TenantID       string
	ConversationID string
	To             string
	Body           string
}

// ReplyMessenger delivers replies and returns the channel's message id.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) (string, error)
}

type textSender interface {
	SendText(ctx context.Context, phoneNumberID, token, to, text string) (*whatsapp.SendResponse, error)
}

// WhatsAppSender sends through the Cloud API number bound to the tenant.
type WhatsAppSender struct {
	client   textSender
	channels tenant.Directory
	metrics  *metrics.CommerceMetrics
	logger   *logging.Logger
}

func NewWhatsAppSender(client textSender, channels tenant.Directory, m *metrics.CommerceMetrics, logger *logging.Logger) *WhatsAppSender {
	if client == nil {
		panic("messaging: whatsapp client required")
	}
	if channels == nil {
		panic("messaging: channel directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppSender{client: client, channels: channels, metrics: m, logger: logger}
}

var _ ReplyMessenger = (*WhatsAppSender)(nil)

func (s *WhatsAppSender) SendReply(ctx context.Context, reply OutboundReply) (string, error) {
	if reply.TenantID == "" {
		return "", errors.New("messaging: tenant id required")
	}
	if reply.To == "" {
		return "", errors.New("messaging: to required")
	}
	if strings.TrimSpace(reply.Body) == "" {
		return "", errors.New("messaging: body required")
	}

	ctx, span := sendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("commerce.tenant_id", reply.TenantID),
		attribute.String("commerce.conversation_id", reply.ConversationID),
	)

	channel, err := s.channels.ChannelForTenant(ctx, reply.TenantID)
	if err != nil {
		s.metrics.ObserveOutbound("no_channel")
		span.RecordError(err)
		return "", fmt.Errorf("messaging: resolve channel: %w", err)
	}
	resp, err := s.client.SendText(ctx, channel.PhoneNumberID, channel.AccessToken, reply.To, reply.Body)
	if err != nil {
		s.metrics.ObserveOutbound("failed")
		span.RecordError(err)
		s.logger.Error("failed to send whatsapp reply", "error", err, "tenant_id", reply.TenantID, "to", reply.To)
		return "", err
	}
	s.metrics.ObserveOutbound("sent")
	id := resp.MessageID()
	s.logger.Info("whatsapp reply sent", "tenant_id", reply.TenantID, "conversation_id", reply.ConversationID, "message_id", id)
	return id, nil
}
