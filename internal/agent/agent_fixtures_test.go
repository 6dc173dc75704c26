package agent

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

func testCatalog() *catalog.MemoryLookup {
	return catalog.NewMemoryLookup(
		catalog.Product{ID: "p-dress", TenantID: "t1", Name: "Ankara Print Dress", Price: decimal.NewFromInt(25000), Active: true},
		catalog.Product{ID: "p-bag", TenantID: "t1", Name: "Beaded Bag", Price: decimal.RequireFromString("8999.50"), TrackInventory: true, Quantity: 3, Active: true},
		catalog.Product{ID: "p-cap", TenantID: "t1", Name: "Aso Oke Cap", Price: decimal.NewFromInt(5000), TrackInventory: true, Quantity: 0, Active: true},
		catalog.Product{ID: "p-old", TenantID: "t1", Name: "Retired Scarf", Price: decimal.NewFromInt(100), Active: false},
	)
}

func testConfig() *tenant.Config {
	cfg := tenant.DefaultConfig("t1")
	cfg.BusinessName = "Adire House"
	cfg.DeliveryAreas = []tenant.DeliveryArea{
		{Name: "Lekki", Fee: decimal.NewFromInt(2500)},
		{Name: "Ikeja", Fee: decimal.NewFromInt(1500)},
	}
	return cfg
}

func newConversation() *conversation.Conversation {
	conv := conversation.New("t1", "2348011111111", "Ada", time.Now())
	conv.ID = "c1"
	return conv
}

// stubLLM returns canned completions and records every request.
type stubLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	block    bool
	requests []LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return LLMResponse{}, nil
	}
	text := s.replies[0]
	s.replies = s.replies[1:]
	return LLMResponse{Text: text}, nil
}
