// Package inbound turns one customer chat message into at most one reply.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-commerce/internal/agent"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// HistoryLimit is how many earlier messages the agent sees.
const HistoryLimit = 10

type messageLog interface {
	Seen(ctx context.Context, upstreamID string) (bool, error)
	Append(ctx context.Context, msg *conversation.Message) error
	Recent(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

type conversationStore interface {
	GetOrCreate(ctx context.Context, tenantID, address, name string) (*conversation.Conversation, bool, error)
	Save(ctx context.Context, conv *conversation.Conversation) error
}

type turnRunner interface {
	Turn(ctx context.Context, in agent.TurnInput) agent.TurnOutput
}

type stateMachine interface {
	HandOff(conv *conversation.Conversation, reason string) conversation.Result
	ReopenConfirmation(conv *conversation.Conversation) conversation.Result
}

type orderCreator interface {
	CreateFromConversation(ctx context.Context, conv *conversation.Conversation) (orders.CreateResult, error)
}

type readMarker interface {
	MarkAsRead(ctx context.Context, phoneNumberID, token, messageID string) error
}

// EventSink receives operator-facing events.
type EventSink interface {
	Publish(eventType string, payload any)
}

// Processor runs the inbound pipeline for one message.
type Processor struct {
	log       messageLog
	convs     conversationStore
	channels  tenant.Directory
	configs   tenant.ConfigSource
	locker    conversation.Locker
	agent     turnRunner
	machine   stateMachine
	orders    orderCreator
	messenger messaging.ReplyMessenger
	reader    readMarker
	sink      EventSink
	metrics   *metrics.CommerceMetrics
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Deps groups the required collaborators.
type Deps struct {
	Log       messageLog
	Store     conversationStore
	Channels  tenant.Directory
	Configs   tenant.ConfigSource
	Locker    conversation.Locker
	Agent     turnRunner
	Machine   stateMachine
	Orders    orderCreator
	Messenger messaging.ReplyMessenger
}

type Option func(*Processor)

// WithReadReceipts marks each accepted message as read.
func WithReadReceipts(r readMarker) Option {
	return func(p *Processor) { p.reader = r }
}

func WithEventSink(s EventSink) Option {
	return func(p *Processor) { p.sink = s }
}

func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(deps Deps, logger *logging.Logger, opts ...Option) *Processor {
	switch {
	case deps.Log == nil:
		panic("inbound: message log required")
	case deps.Store == nil:
		panic("inbound: conversation store required")
	case deps.Channels == nil:
		panic("inbound: channel directory required")
	case deps.Agent == nil:
		panic("inbound: agent required")
	case deps.Machine == nil:
		panic("inbound: state machine required")
	case deps.Orders == nil:
		panic("inbound: order creator required")
	case deps.Messenger == nil:
		panic("inbound: messenger required")
	}
	if deps.Locker == nil {
		deps.Locker = conversation.NewKeyedMutex()
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		log:       deps.Log,
		convs:     deps.Store,
		channels:  deps.Channels,
		configs:   deps.Configs,
		locker:    deps.Locker,
		agent:     deps.Agent,
		machine:   deps.Machine,
		orders:    deps.Orders,
		messenger: deps.Messenger,
		logger:    logger,
		tracer:    otel.Tracer("whatsapp-commerce.internal.inbound"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one message unit. Duplicates and messages for unknown
// channels are dropped silently.
func (p *Processor) Process(ctx context.Context, msg events.InboundMessageV1) error {
	ctx, span := p.tracer.Start(ctx, "inbound.process", trace.WithAttributes(
		attribute.String("whatsapp.message_id", msg.MessageID),
		attribute.String("whatsapp.phone_number_id", msg.PhoneNumberID),
	))
	defer span.End()

	if msg.MessageID != "" {
		seen, err := p.log.Seen(ctx, msg.MessageID)
		if err != nil {
			span.RecordError(err)
			p.metrics.ObserveInbound("error")
			return fmt.Errorf("inbound: dedup lookup: %w", err)
		}
		if seen {
			p.metrics.ObserveInbound("duplicate")
			return nil
		}
	}

	channel, err := p.channels.ResolveChannel(ctx, msg.PhoneNumberID)
	if errors.Is(err, tenant.ErrUnknownChannel) {
		p.logger.Warn("no tenant for WhatsApp number", "phone_number_id", msg.PhoneNumberID)
		p.metrics.ObserveInbound("unknown_channel")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		p.metrics.ObserveInbound("error")
		return fmt.Errorf("inbound: resolve channel: %w", err)
	}

	from := messaging.NormalizeWhatsAppID(msg.From)
	unlock, err := p.locker.Lock(ctx, conversation.LockKey(channel.TenantID, from))
	if err != nil {
		p.metrics.ObserveInbound("error")
		return fmt.Errorf("inbound: lock conversation: %w", err)
	}
	defer unlock()

	err = p.handle(ctx, channel, from, msg)
	switch {
	case errors.Is(err, conversation.ErrDuplicate):
		p.metrics.ObserveInbound("duplicate")
		return nil
	case err != nil:
		span.RecordError(err)
		p.metrics.ObserveInbound("error")
		return err
	}
	p.metrics.ObserveInbound("processed")
	return nil
}

func (p *Processor) handle(ctx context.Context, channel *tenant.Channel, from string, msg events.InboundMessageV1) error {
	conv, created, err := p.convs.GetOrCreate(ctx, channel.TenantID, from, msg.ProfileName)
	if err != nil {
		return fmt.Errorf("inbound: load conversation: %w", err)
	}
	if !created && conv.Closed() {
		conv.Reactivate()
	}
	if conv.CustomerName == "" && msg.ProfileName != "" {
		conv.CustomerName = msg.ProfileName
	}
	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	current := &conversation.Message{
		ConversationID: conv.ID,
		Direction:      conversation.DirectionInbound,
		Type:           msg.Type,
		Content:        msg.Content,
		MediaRef:       msg.MediaID,
		UpstreamID:     msg.MessageID,
		CreatedAt:      receivedAt,
	}
	if err := p.log.Append(ctx, current); err != nil {
		if errors.Is(err, conversation.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("inbound: persist message: %w", err)
	}
	conv.RecordMessage(receivedAt)
	p.logger.Info("message received",
		"tenant_id", conv.TenantID,
		"conversation_id", conv.ID,
		"type", msg.Type,
	)
	p.markRead(ctx, channel, msg.MessageID)

	if conv.HandedOff || conv.State == conversation.StateHandedOff {
		p.logger.Debug("conversation handed off, no automated reply", "conversation_id", conv.ID)
		return p.save(ctx, conv)
	}

	history, err := p.history(ctx, conv.ID, current.ID)
	if err != nil {
		p.logger.Warn("failed to load history", "error", err, "conversation_id", conv.ID)
	}

	out := p.agent.Turn(ctx, agent.TurnInput{
		Conversation: conv,
		Config:       p.config(ctx, conv.TenantID),
		Message:      msg.Content,
		History:      history,
	})

	if out.Handoff {
		p.machine.HandOff(conv, out.HandoffReason)
		p.metrics.ObserveHandoff()
		p.publishHandoff(conv)
	} else if out.SuggestedState != "" {
		conv.State = out.SuggestedState
	}

	reply := out.Reply
	if out.RequiresPaymentLink && !conv.HandedOff {
		result, err := p.orders.CreateFromConversation(ctx, conv)
		if err != nil {
			p.logger.Error("order creation failed", "error", err, "conversation_id", conv.ID)
		}
		if result.Success {
			p.logger.Info("order created", "conversation_id", conv.ID, "order_number", result.Order.OrderNumber)
			return p.save(ctx, conv)
		}
		if result.Message != "" {
			reply = reply + "\n\n" + result.Message
		}
		// no order exists, so the next confirmation retries
		p.machine.ReopenConfirmation(conv)
	}

	if err := p.save(ctx, conv); err != nil {
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return nil
	}
	if _, err := p.messenger.SendReply(ctx, messaging.OutboundReply{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		To:             conv.CustomerAddress,
		Body:           reply,
	}); err != nil {
		p.logger.Error("failed to send reply", "error", err, "conversation_id", conv.ID)
	}
	return nil
}

// history returns up to HistoryLimit earlier messages, oldest first.
func (p *Processor) history(ctx context.Context, conversationID, currentID string) ([]conversation.Message, error) {
	recent, err := p.log.Recent(ctx, conversationID, HistoryLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID == currentID {
			continue
		}
		out = append(out, m)
	}
	if len(out) > HistoryLimit {
		out = out[len(out)-HistoryLimit:]
	}
	return out, nil
}

func (p *Processor) config(ctx context.Context, tenantID string) *tenant.Config {
	if p.configs == nil {
		return tenant.DefaultConfig(tenantID)
	}
	cfg, err := p.configs.Get(ctx, tenantID)
	if err != nil || cfg == nil {
		p.logger.Warn("using default tenant config", "error", err, "tenant_id", tenantID)
		return tenant.DefaultConfig(tenantID)
	}
	return cfg
}

func (p *Processor) save(ctx context.Context, conv *conversation.Conversation) error {
	if err := p.convs.Save(ctx, conv); err != nil {
		return fmt.Errorf("inbound: save conversation: %w", err)
	}
	return nil
}

func (p *Processor) markRead(ctx context.Context, channel *tenant.Channel, messageID string) {
	if p.reader == nil || messageID == "" {
		return
	}
	if err := p.reader.MarkAsRead(ctx, channel.PhoneNumberID, channel.AccessToken, messageID); err != nil {
		p.logger.Warn("failed to mark message read", "error", err, "tenant_id", channel.TenantID)
	}
}

func (p *Processor) publishHandoff(conv *conversation.Conversation) {
	if p.sink == nil {
		return
	}
	at := p.now()
	if conv.HandedOffAt != nil {
		at = *conv.HandedOffAt
	}
	p.sink.Publish(events.TypeHandoff, events.HandoffV1{
		TenantID:        conv.TenantID,
		ConversationID:  conv.ID,
		CustomerAddress: conv.CustomerAddress,
		CustomerName:    conv.CustomerName,
		Reason:          conv.HandedOffReason,
		OccurredAt:      at,
	})
}
