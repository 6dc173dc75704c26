package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
)

func newTestOrchestrator(llm LLMClient, opts ...Option) *Orchestrator {
	lookup := testCatalog()
	return NewOrchestrator(llm, conversation.NewMachine(lookup), lookup, nil, opts...)
}

func TestTurnUsesLLMAndAppliesMarkers(t *testing.T) {
	llm := &stubLLM{replies: []string{`Lovely pick! [ADD_TO_CART: "Ankara Print Dress", 1] Anything else?`}}
	orch := newTestOrchestrator(llm, WithModel("test-model"), WithMetrics(metrics.NewCommerceMetrics(prometheus.NewRegistry())))
	conv := newConversation()

	history := []conversation.Message{
		{Direction: conversation.DirectionInbound, Content: "Hi"},
		{Direction: conversation.DirectionOutbound, Content: "Hello! What are you looking for?"},
	}
	out := orch.Turn(context.Background(), TurnInput{Conversation: conv, Config: testConfig(), Message: "I want the ankara dress", History: history})

	assert.Equal(t, SourceLLM, out.Source)
	assert.Equal(t, "Lovely pick! Anything else?", out.Reply)
	assert.Equal(t, conversation.StateAddingToCart, out.SuggestedState)
	require.Len(t, out.Cart.Items, 1)
	assert.Same(t, conv.Cart, out.Cart)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0], "You are Ayo, a friendly WhatsApp sales assistant for Adire House")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, ChatRoleUser, req.Messages[0].Role)
	assert.Equal(t, ChatRoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "I want the ankara dress", req.Messages[2].Content)
}

func TestTurnWithoutBackendUsesRules(t *testing.T) {
	orch := newTestOrchestrator(nil)
	out := orch.Turn(context.Background(), TurnInput{Conversation: newConversation(), Config: testConfig(), Message: "hello"})
	assert.Equal(t, SourceRules, out.Source)
	assert.Equal(t, replyDefaultGreeting, out.Reply)
	assert.NotNil(t, out.Cart)
}

func TestTurnFallsBackOnErrorBlankAndTimeout(t *testing.T) {
	tests := []struct {
		name string
		llm  *stubLLM
	}{
		{name: "error", llm: &stubLLM{err: errors.New("throttled")}},
		{name: "blank", llm: &stubLLM{replies: []string{"   "}}},
		{name: "timeout", llm: &stubLLM{block: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orch := newTestOrchestrator(tc.llm, WithTimeout(20*time.Millisecond))
			conv := newConversation()

			start := time.Now()
			out := orch.Turn(context.Background(), TurnInput{Conversation: conv, Config: testConfig(), Message: "2 beaded bag"})
			assert.Less(t, time.Since(start), 2*time.Second)

			assert.Equal(t, SourceRules, out.Source)
			assert.True(t, strings.HasPrefix(out.Reply, "Added 2x Beaded Bag to your cart!"), out.Reply)
			assert.Equal(t, 2, conv.Cart.TotalItemCount())
		})
	}
}

type failingCatalog struct{ catalog.Lookup }

func (failingCatalog) FindActiveByTenant(context.Context, string) ([]catalog.Product, error) {
	return nil, errors.New("catalog offline")
}

func TestTurnSurvivesCatalogOutage(t *testing.T) {
	lookup := failingCatalog{Lookup: testCatalog()}
	llm := &stubLLM{replies: []string{`[ADD_TO_CART: "Beaded Bag", 1]`}}
	orch := NewOrchestrator(llm, conversation.NewMachine(lookup), lookup, nil)
	conv := newConversation()

	out := orch.Turn(context.Background(), TurnInput{Conversation: conv, Config: testConfig(), Message: "1 beaded bag"})
	assert.Equal(t, SourceRules, out.Source)
	assert.Equal(t, replyMenu, out.Reply)
	assert.True(t, conv.Cart.IsEmpty())
	assert.Equal(t, conversation.StateGreeting, conv.State)
}

func TestTurnMarkerOnlyCompletion(t *testing.T) {
	llm := &stubLLM{replies: []string{`[HANDOFF: "wants wholesale pricing"]`}}
	orch := newTestOrchestrator(llm)
	out := orch.Turn(context.Background(), TurnInput{Conversation: newConversation(), Config: testConfig(), Message: "wholesale?"})

	assert.Equal(t, SourceLLM, out.Source)
	assert.True(t, out.Handoff)
	assert.Equal(t, "wants wholesale pricing", out.HandoffReason)
	assert.Equal(t, replyHandoff, out.Reply)
}

func TestTurnConfirmationRequestsPaymentLink(t *testing.T) {
	llm := &stubLLM{replies: []string{"Perfect! [CONFIRM_ORDER]"}}
	orch := newTestOrchestrator(llm)
	conv := newConversation()
	machine := conversation.NewMachine(testCatalog())
	_, err := machine.AddToCartByName(context.Background(), conv, "Beaded Bag", 1)
	require.NoError(t, err)
	require.True(t, machine.SetDeliveryAddress(conv, testConfig(), "3 Isaac John, Ikeja", "Ikeja").Success)
	require.True(t, machine.PrepareForConfirmation(conv).Success)

	out := orch.Turn(context.Background(), TurnInput{Conversation: conv, Config: testConfig(), Message: "yes"})
	assert.True(t, out.RequiresPaymentLink)
	assert.Equal(t, conversation.StateAwaitingPayment, out.SuggestedState)
	assert.Equal(t, "Perfect!", out.Reply)
}
