package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-commerce/internal/agent"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging"
	"github.com/wolfman30/whatsapp-commerce/internal/orders"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

type memoryLog struct {
	mu   sync.Mutex
	msgs []conversation.Message
	seq  int
}

func (l *memoryLog) Seen(_ context.Context, upstreamID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m.UpstreamID == upstreamID {
			return true, nil
		}
	}
	return false, nil
}

func (l *memoryLog) Append(_ context.Context, msg *conversation.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if msg.UpstreamID != "" && m.UpstreamID == msg.UpstreamID {
			return conversation.ErrDuplicate
		}
	}
	l.seq++
	msg.ID = fmt.Sprintf("m%d", l.seq)
	l.msgs = append(l.msgs, *msg)
	return nil
}

func (l *memoryLog) Recent(_ context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []conversation.Message
	for _, m := range l.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memoryStore struct {
	mu    sync.Mutex
	convs map[string]conversation.Conversation
	saves int
	seq   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{convs: map[string]conversation.Conversation{}}
}

func (s *memoryStore) GetOrCreate(_ context.Context, tenantID, address, name string) (*conversation.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conversation.LockKey(tenantID, address)
	if existing, ok := s.convs[key]; ok {
		return copyConversation(existing), false, nil
	}
	s.seq++
	conv := conversation.New(tenantID, address, name, time.Now())
	conv.ID = fmt.Sprintf("c%d", s.seq)
	s.convs[key] = *copyConversation(*conv)
	return conv, true, nil
}

func (s *memoryStore) Save(_ context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.convs[conversation.LockKey(conv.TenantID, conv.CustomerAddress)] = *copyConversation(*conv)
	return nil
}

func (s *memoryStore) put(conv *conversation.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conversation.LockKey(conv.TenantID, conv.CustomerAddress)] = *copyConversation(*conv)
}

func (s *memoryStore) get(tenantID, address string) *conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversation.LockKey(tenantID, address)]
	if !ok {
		return nil
	}
	return copyConversation(conv)
}

func copyConversation(c conversation.Conversation) *conversation.Conversation {
	if c.Cart != nil {
		c.Cart = c.Cart.Clone()
	}
	return &c
}

type stubAgent struct {
	mu     sync.Mutex
	out    agent.TurnOutput
	inputs []agent.TurnInput
}

func (a *stubAgent) Turn(_ context.Context, in agent.TurnInput) agent.TurnOutput {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, in)
	return a.out
}

func (a *stubAgent) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

type stubOrders struct {
	result orders.CreateResult
	err    error
	calls  int
}

func (o *stubOrders) CreateFromConversation(_ context.Context, conv *conversation.Conversation) (orders.CreateResult, error) {
	o.calls++
	if o.result.Success {
		conv.State = conversation.StateAwaitingPayment
	}
	return o.result, o.err
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []messaging.OutboundReply
}

func (m *recordingMessenger) SendReply(_ context.Context, reply messaging.OutboundReply) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply)
	return fmt.Sprintf("wamid.%d", len(m.replies)), nil
}

func (m *recordingMessenger) sent() []messaging.OutboundReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]messaging.OutboundReply(nil), m.replies...)
}

type stubReader struct {
	ids []string
	err error
}

func (r *stubReader) MarkAsRead(_ context.Context, phoneNumberID, token, messageID string) error {
	r.ids = append(r.ids, phoneNumberID+"/"+token+"/"+messageID)
	return r.err
}

type recordingSink struct {
	types    []string
	payloads []any
}

func (s *recordingSink) Publish(eventType string, payload any) {
	s.types = append(s.types, eventType)
	s.payloads = append(s.payloads, payload)
}

func testLookup() *catalog.MemoryLookup {
	return catalog.NewMemoryLookup(
		catalog.Product{ID: "p-dress", TenantID: "t1", Name: "Ankara Print Dress", Price: decimal.NewFromInt(25000), Active: true},
		catalog.Product{ID: "p-bag", TenantID: "t1", Name: "Beaded Bag", Price: decimal.RequireFromString("8999.50"), TrackInventory: true, Quantity: 3, Active: true},
	)
}

func testTenantConfig() tenant.Config {
	cfg := tenant.DefaultConfig("t1")
	cfg.BusinessName = "Adire House"
	cfg.DeliveryAreas = []tenant.DeliveryArea{
		{Name: "Lekki", Fee: decimal.NewFromInt(2500)},
		{Name: "Ikeja", Fee: decimal.NewFromInt(1500)},
	}
	return *cfg
}

type harness struct {
	log       *memoryLog
	store     *memoryStore
	agent     *stubAgent
	orders    *stubOrders
	messenger *recordingMessenger
	reader    *stubReader
	sink      *recordingSink
	processor *Processor
}

func newHarness(t *testing.T, turn agent.TurnOutput) *harness {
	t.Helper()
	h := &harness{
		log:       &memoryLog{},
		store:     newMemoryStore(),
		agent:     &stubAgent{out: turn},
		orders:    &stubOrders{},
		messenger: &recordingMessenger{},
		reader:    &stubReader{},
		sink:      &recordingSink{},
	}
	h.processor = NewProcessor(Deps{
		Log:       h.log,
		Store:     h.store,
		Channels:  tenant.NewMemoryDirectory(tenant.Channel{TenantID: "t1", PhoneNumberID: "pn-1", AccessToken: "tok"}),
		Configs:   tenant.NewMemoryConfigStore(testTenantConfig()),
		Agent:     h.agent,
		Machine:   conversation.NewMachine(testLookup()),
		Orders:    h.orders,
		Messenger: h.messenger,
	}, nil, WithReadReceipts(h.reader), WithEventSink(h.sink))
	return h
}

func inboundText(id, text string) events.InboundMessageV1 {
	return events.InboundMessageV1{
		MessageID:     id,
		PhoneNumberID: "pn-1",
		From:          "+234 801 111 1111",
		ProfileName:   "Ada",
		Type:          "text",
		Content:       text,
		Timestamp:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessRepliesAndPersists(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "Welcome to Adire House!", SuggestedState: conversation.StateBrowsing})

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.in1", "Hi")))

	sent := h.messenger.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "2348011111111", sent[0].To)
	assert.Equal(t, "t1", sent[0].TenantID)
	assert.Equal(t, "Welcome to Adire House!", sent[0].Body)

	conv := h.store.get("t1", "2348011111111")
	require.NotNil(t, conv)
	assert.Equal(t, conversation.StateBrowsing, conv.State)
	assert.Equal(t, 1, conv.MessageCount)
	assert.Equal(t, "Ada", conv.CustomerName)

	require.Len(t, h.log.msgs, 1)
	assert.Equal(t, conversation.DirectionInbound, h.log.msgs[0].Direction)
	assert.Equal(t, "wamid.in1", h.log.msgs[0].UpstreamID)
	assert.Equal(t, []string{"pn-1/tok/wamid.in1"}, h.reader.ids)

	require.Len(t, h.agent.inputs, 1)
	assert.Equal(t, "Adire House", h.agent.inputs[0].Config.BusinessName)
	assert.Empty(t, h.agent.inputs[0].History)
}

func TestProcessDropsDuplicateDelivery(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "hello"})
	ctx := context.Background()

	require.NoError(t, h.processor.Process(ctx, inboundText("wamid.dup", "Hi")))
	require.NoError(t, h.processor.Process(ctx, inboundText("wamid.dup", "Hi")))

	assert.Len(t, h.messenger.sent(), 1)
	assert.Equal(t, 1, h.agent.calls())
	assert.Len(t, h.log.msgs, 1)
}

func TestProcessIgnoresUnknownChannel(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "hello"})
	msg := inboundText("wamid.x", "Hi")
	msg.PhoneNumberID = "pn-unknown"

	require.NoError(t, h.processor.Process(context.Background(), msg))
	assert.Empty(t, h.messenger.sent())
	assert.Empty(t, h.log.msgs)
	assert.Zero(t, h.agent.calls())
}

func TestProcessHandedOffConversationGetsNoReply(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "hello"})
	conv := conversation.New("t1", "2348011111111", "Ada", time.Now())
	conv.ID = "c-existing"
	conv.State = conversation.StateHandedOff
	conv.HandedOff = true
	h.store.put(conv)

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.h1", "hello? anyone")))

	assert.Zero(t, h.agent.calls())
	assert.Empty(t, h.messenger.sent())
	require.Len(t, h.log.msgs, 1)
	assert.Equal(t, "c-existing", h.log.msgs[0].ConversationID)
	assert.Equal(t, 1, h.store.saves)
}

func TestProcessHistoryExcludesCurrentMessage(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "ok"})
	ctx := context.Background()
	conv := conversation.New("t1", "2348011111111", "Ada", time.Now())
	conv.ID = "c-hist"
	h.store.put(conv)
	for i := 0; i < 12; i++ {
		require.NoError(t, h.log.Append(ctx, &conversation.Message{
			ConversationID: "c-hist",
			Direction:      conversation.DirectionInbound,
			Content:        fmt.Sprintf("earlier %d", i),
			UpstreamID:     fmt.Sprintf("old-%d", i),
		}))
	}

	require.NoError(t, h.processor.Process(ctx, inboundText("wamid.now", "latest question")))

	require.Len(t, h.agent.inputs, 1)
	in := h.agent.inputs[0]
	assert.Equal(t, "latest question", in.Message)
	require.Len(t, in.History, HistoryLimit)
	assert.Equal(t, "earlier 2", in.History[0].Content)
	assert.Equal(t, "earlier 11", in.History[HistoryLimit-1].Content)
	for _, m := range in.History {
		assert.NotEqual(t, "latest question", m.Content)
	}
}

func TestProcessHandoffPublishesEvent(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{
		Reply:         "Let me connect you with our team.",
		Handoff:       true,
		HandoffReason: "Customer asked for a manager",
	})

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.m1", "I want to talk to a manager")))

	conv := h.store.get("t1", "2348011111111")
	require.NotNil(t, conv)
	assert.True(t, conv.HandedOff)
	assert.Equal(t, conversation.StateHandedOff, conv.State)
	assert.Equal(t, "Customer asked for a manager", conv.HandedOffReason)

	require.Equal(t, []string{events.TypeHandoff}, h.sink.types)
	evt, ok := h.sink.payloads[0].(events.HandoffV1)
	require.True(t, ok)
	assert.Equal(t, conv.ID, evt.ConversationID)
	assert.Equal(t, "Customer asked for a manager", evt.Reason)
	assert.Len(t, h.messenger.sent(), 1)
}

func TestProcessOrderCreatedSendsNoExtraReply(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{
		Reply:               "Order confirmed! I'll send you a payment link shortly.",
		RequiresPaymentLink: true,
		SuggestedState:      conversation.StateAwaitingPayment,
	})
	h.orders.result = orders.CreateResult{Success: true, Order: &orders.Order{OrderNumber: "20260301-ABC"}}

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.y", "Yes")))

	assert.Equal(t, 1, h.orders.calls)
	assert.Empty(t, h.messenger.sent())
	conv := h.store.get("t1", "2348011111111")
	require.NotNil(t, conv)
	assert.Equal(t, conversation.StateAwaitingPayment, conv.State)
}

func TestProcessOrderFailureAppendsReason(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{
		Reply:               "Order confirmed! I'll send you a payment link shortly.",
		RequiresPaymentLink: true,
	})
	h.orders.result = orders.CreateResult{Message: "Sorry, Beaded Bag is out of stock."}
	h.orders.err = errors.New("gateway down")

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.y", "Yes")))

	sent := h.messenger.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Order confirmed! I'll send you a payment link shortly.\n\nSorry, Beaded Bag is out of stock.", sent[0].Body)
}

func TestProcessReactivatesClosedConversation(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "Welcome back!"})
	conv := conversation.New("t1", "2348011111111", "Ada", time.Now())
	conv.ID = "c-old"
	conv.State = conversation.StateCompleted
	conv.Active = false
	conv.Outcome = conversation.OutcomeConverted
	h.store.put(conv)

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.r", "Hi again")))

	require.Len(t, h.agent.inputs, 1)
	seen := h.agent.inputs[0].Conversation
	assert.Equal(t, "c-old", seen.ID)
	stored := h.store.get("t1", "2348011111111")
	assert.True(t, stored.Active)
	assert.Equal(t, conversation.StateGreeting, stored.State)
	assert.Empty(t, stored.Outcome)
}

func TestProcessReadReceiptFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, agent.TurnOutput{Reply: "hello"})
	h.reader.err = errors.New("graph api 500")

	require.NoError(t, h.processor.Process(context.Background(), inboundText("wamid.rr", "Hi")))
	assert.Len(t, h.messenger.sent(), 1)
}

// ruleProcessor wires the real machine and the rule-based orchestrator.
func ruleProcessor(h *harness, lookup *catalog.MemoryLookup, machine *conversation.Machine) *Processor {
	return NewProcessor(Deps{
		Log:       h.log,
		Store:     h.store,
		Channels:  tenant.NewMemoryDirectory(tenant.Channel{TenantID: "t1", PhoneNumberID: "pn-1", AccessToken: "tok"}),
		Configs:   tenant.NewMemoryConfigStore(testTenantConfig()),
		Agent:     agent.NewOrchestrator(nil, machine, lookup, nil),
		Machine:   machine,
		Orders:    h.orders,
		Messenger: h.messenger,
	}, nil)
}

func TestProcessRuleConversationEndToEnd(t *testing.T) {
	lookup := testLookup()
	machine := conversation.NewMachine(lookup)
	h := newHarness(t, agent.TurnOutput{})
	h.orders.result = orders.CreateResult{Success: true, Order: &orders.Order{OrderNumber: "20260301-XYZ"}}
	p := ruleProcessor(h, lookup, machine)
	ctx := context.Background()

	turns := []string{
		"Hi",
		"how much are your things",
		"2 pieces of beaded bag",
		"what about delivery",
		"12 Allen Avenue, Ikeja",
		"Yes",
	}
	for i, text := range turns {
		require.NoError(t, p.Process(ctx, inboundText(fmt.Sprintf("wamid.e%d", i), text)))
	}

	sent := h.messenger.sent()
	require.Len(t, sent, len(turns)-1)
	assert.True(t, strings.HasPrefix(sent[2].Body, "Added 2x Beaded Bag to your cart!"), sent[2].Body)
	assert.Contains(t, sent[4].Body, "*Delivery to:* 12 Allen Avenue, Ikeja")
	assert.Equal(t, 1, h.orders.calls)

	conv := h.store.get("t1", "2348011111111")
	require.NotNil(t, conv)
	assert.Equal(t, conversation.StateAwaitingPayment, conv.State)
	assert.True(t, conv.Cart.Confirmed)
	assert.Equal(t, "Ikeja", conv.Cart.DeliveryArea)
	assert.Equal(t, 2, conv.Cart.TotalItemCount())
	assert.Equal(t, len(turns), conv.MessageCount)
}

func TestProcessStartsOverAfterCompletedOrder(t *testing.T) {
	lookup := testLookup()
	machine := conversation.NewMachine(lookup)
	h := newHarness(t, agent.TurnOutput{})
	p := ruleProcessor(h, lookup, machine)
	ctx := context.Background()

	conv := conversation.New("t1", "2348011111111", "Ada", time.Now())
	conv.ID = "c-paid"
	_, err := machine.AddToCart(ctx, conv, "p-dress", 1)
	require.NoError(t, err)
	machine.CompleteOrder(conv, "WA-20260301-XYZ")
	h.store.put(conv)

	require.NoError(t, p.Process(ctx, inboundText("wamid.back1", "Hi")))
	stored := h.store.get("t1", "2348011111111")
	require.NotNil(t, stored)
	assert.Equal(t, "c-paid", stored.ID)
	assert.True(t, stored.Active)
	assert.NotEqual(t, conversation.StateCompleted, stored.State)
	assert.True(t, stored.Cart.IsEmpty())
	assert.Empty(t, stored.Outcome)

	require.NoError(t, p.Process(ctx, inboundText("wamid.back2", "2 pieces of beaded bag")))
	sent := h.messenger.sent()
	require.Len(t, sent, 2)
	assert.True(t, strings.HasPrefix(sent[1].Body, "Added 2x Beaded Bag to your cart!"), sent[1].Body)

	stored = h.store.get("t1", "2348011111111")
	assert.Equal(t, 2, stored.Cart.TotalItemCount())
}

func TestProcessFailedOrderCanBeConfirmedAgain(t *testing.T) {
	lookup := testLookup()
	machine := conversation.NewMachine(lookup)
	h := newHarness(t, agent.TurnOutput{})
	h.orders.result = orders.CreateResult{Message: "Sorry, there was an error processing your order. Please try again."}
	h.orders.err = errors.New("db down")
	p := ruleProcessor(h, lookup, machine)
	ctx := context.Background()

	conv := conversation.New("t1", "2348011111111", "Ada", time.Now())
	conv.ID = "c-retry"
	_, err := machine.AddToCart(ctx, conv, "p-bag", 1)
	require.NoError(t, err)
	cfg := testTenantConfig()
	require.True(t, machine.SetDeliveryAddress(conv, &cfg, "12 Allen Avenue, Ikeja", "Ikeja").Success)
	require.True(t, machine.PrepareForConfirmation(conv).Success)
	h.store.put(conv)

	require.NoError(t, p.Process(ctx, inboundText("wamid.yes1", "Yes")))
	assert.Equal(t, 1, h.orders.calls)
	sent := h.messenger.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Please try again.")

	stored := h.store.get("t1", "2348011111111")
	require.NotNil(t, stored)
	assert.Equal(t, conversation.StateConfirmingOrder, stored.State)
	assert.False(t, stored.Cart.Confirmed)
	assert.Equal(t, 1, stored.Cart.TotalItemCount())

	h.orders.err = nil
	h.orders.result = orders.CreateResult{Success: true, Order: &orders.Order{OrderNumber: "20260301-OK"}}
	require.NoError(t, p.Process(ctx, inboundText("wamid.yes2", "Yes")))
	assert.Equal(t, 2, h.orders.calls)

	stored = h.store.get("t1", "2348011111111")
	assert.Equal(t, conversation.StateAwaitingPayment, stored.State)
	assert.True(t, stored.Cart.Confirmed)
}
