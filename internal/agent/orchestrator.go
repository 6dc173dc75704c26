// Package agent runs one sales-assistant turn: prompt a text-completion
// backend, execute the action markers it returns, and fall back to
// deterministic rules when the backend cannot answer.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	DefaultTurnTimeout = 30 * time.Second
	defaultMaxTokens   = 400
	defaultTemperature = 0.7

	SourceLLM   = "llm"
	SourceRules = "rules"

	// Reasons the rules answered instead of the backend.
	reasonUnconfigured = "unconfigured"
	reasonTimeout      = "timeout"
	reasonError        = "error"
	reasonBlank        = "blank"
)

// TurnInput is one inbound customer message with its context.
type TurnInput struct {
	Conversation *conversation.Conversation
	Config       *tenant.Config
	Message      string
	History      []conversation.Message
}

// TurnOutput is the result of one turn. Conversation in the input has already
// been mutated to match; the caller persists it.
type TurnOutput struct {
	Reply               string
	Handoff             bool
	HandoffReason       string
	SuggestedState      conversation.State
	Cart                *cart.OrderContext
	RequiresPaymentLink bool
	Actions             []string
	Source              string
}

type Option func(*Orchestrator)

func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMaxTokens(n int32) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator drives the sales agent.
type Orchestrator struct {
	llm       LLMClient
	machine   *conversation.Machine
	catalog   catalog.Lookup
	rules     *RuleResponder
	logger    *logging.Logger
	metrics   *metrics.CommerceMetrics
	tracer    trace.Tracer
	model     string
	timeout   time.Duration
	maxTokens int32
}

// NewOrchestrator wires the agent. llm may be nil, in which case every turn is
// answered by the rule responder.
func NewOrchestrator(llm LLMClient, machine *conversation.Machine, lookup catalog.Lookup, logger *logging.Logger, opts ...Option) *Orchestrator {
	if machine == nil || lookup == nil {
		panic("agent: machine and catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		llm:       llm,
		machine:   machine,
		catalog:   lookup,
		rules:     NewRuleResponder(machine, lookup),
		logger:    logger,
		tracer:    otel.Tracer("whatsapp-commerce.internal.agent"),
		timeout:   DefaultTurnTimeout,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Turn produces the reply for one inbound message. It always answers: any
// backend failure is routed to the rule responder.
func (o *Orchestrator) Turn(ctx context.Context, in TurnInput) TurnOutput {
	conv := in.Conversation
	ctx, span := o.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("tenant_id", conv.TenantID),
		attribute.String("conversation_id", conv.ID),
		attribute.String("state", conv.State.String()),
	))
	defer span.End()

	if o.llm == nil {
		return o.fallback(ctx, in, reasonUnconfigured)
	}

	snapshot := *conv
	applied, reason, err := o.generate(ctx, in)
	if err != nil {
		span.RecordError(err)
		*conv = snapshot
		o.logger.Warn("llm turn failed, using rule responder",
			"tenant_id", conv.TenantID,
			"conversation_id", conv.ID,
			"reason", reason,
			"error", err,
		)
		return o.fallback(ctx, in, reason)
	}
	if strings.TrimSpace(applied.Reply) == "" {
		if len(applied.Actions) == 0 {
			*conv = snapshot
			return o.fallback(ctx, in, reasonBlank)
		}
		applied.Reply = markerOnlyReply(conv, applied)
	}

	o.metrics.ObserveAgentTurn(SourceLLM, "")
	return o.output(conv, applied, SourceLLM)
}

var errBlankCompletion = errors.New("agent: blank completion")

func (o *Orchestrator) generate(ctx context.Context, in TurnInput) (Applied, string, error) {
	conv := in.Conversation
	products, err := o.catalog.FindActiveByTenant(ctx, conv.TenantID)
	if err != nil {
		return Applied{}, reasonError, err
	}
	prompt := BuildSystemPrompt(PromptInput{
		Config:   in.Config,
		State:    conv.State,
		Cart:     conv.CartOrEmpty(),
		Products: products,
	})

	llmCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.llm.Complete(llmCtx, LLMRequest{
		Model:       o.model,
		System:      []string{prompt},
		Messages:    historyMessages(in.History, in.Message),
		MaxTokens:   o.maxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		reason := reasonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(llmCtx.Err(), context.DeadlineExceeded) {
			reason = reasonTimeout
		}
		o.metrics.ObserveLLMLatency(reason, time.Since(start).Seconds())
		return Applied{}, reason, err
	}
	o.metrics.ObserveLLMLatency("ok", time.Since(start).Seconds())
	if strings.TrimSpace(resp.Text) == "" {
		return Applied{}, reasonBlank, errBlankCompletion
	}

	applied, err := ApplyCommands(ctx, o.machine, conv, in.Config, resp.Text)
	if err != nil {
		return Applied{}, reasonError, err
	}
	return applied, "", nil
}

func (o *Orchestrator) fallback(ctx context.Context, in TurnInput, reason string) TurnOutput {
	o.metrics.ObserveAgentTurn(SourceRules, reason)
	conv := in.Conversation
	snapshot := *conv
	applied, err := o.rules.Respond(ctx, conv, in.Config, in.Message)
	if err != nil {
		*conv = snapshot
		o.logger.Error("rule responder failed",
			"tenant_id", conv.TenantID,
			"conversation_id", conv.ID,
			"error", err,
		)
		applied = Applied{Reply: replyMenu}
	}
	return o.output(conv, applied, SourceRules)
}

// markerOnlyReply covers a completion that held nothing but markers.
func markerOnlyReply(conv *conversation.Conversation, applied Applied) string {
	switch {
	case applied.Handoff:
		return replyHandoff
	case applied.RequiresPaymentLink:
		return replyConfirmed
	default:
		return conv.CartOrEmpty().Summary()
	}
}

func (o *Orchestrator) output(conv *conversation.Conversation, applied Applied, source string) TurnOutput {
	return TurnOutput{
		Reply:               applied.Reply,
		Handoff:             applied.Handoff,
		HandoffReason:       applied.HandoffReason,
		SuggestedState:      applied.SuggestedState,
		Cart:                conv.CartOrEmpty(),
		RequiresPaymentLink: applied.RequiresPaymentLink,
		Actions:             applied.Actions,
		Source:              source,
	}
}
