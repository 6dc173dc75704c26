package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/whatsapp-commerce/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-commerce/internal/agent"
	"github.com/wolfman30/whatsapp-commerce/internal/app/bootstrap"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	appconfig "github.com/wolfman30/whatsapp-commerce/internal/config"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

// llmtest plays a short scripted chat through the agent against the
// configured LLM provider and prints every turn.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New("warn")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	llm, model, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		log.Fatalf("build llm client: %v", err)
	}

	const tenantID = "llmtest"
	products := catalog.NewMemoryLookup(
		catalog.Product{ID: "p1", TenantID: tenantID, Name: "Ankara Print Dress", Price: decimal.NewFromInt(25000), Active: true},
		catalog.Product{ID: "p2", TenantID: tenantID, Name: "Aso Oke Cap", Price: decimal.NewFromInt(8000), TrackInventory: true, Quantity: 2, Active: true},
	)
	machine := conversation.NewMachine(products)
	orchestrator := agent.NewOrchestrator(llm, machine, products, logger,
		agent.WithModel(model),
		agent.WithTimeout(cfg.LLMTimeout),
		agent.WithMaxTokens(int32(cfg.LLMMaxTokens)),
	)

	script := []string{
		"Hi, what do you sell?",
		"I want 2 Ankara Print Dress",
		"Can you do 20000 each?",
		"Deliver to 12 Allen Avenue, Ikeja",
		"Yes, confirm",
	}

	conv := conversation.New(tenantID, "2348011111111", "Test Customer", time.Now().UTC())
	policy := tenant.DefaultConfig(tenantID)
	var history []conversation.Message

	fmt.Printf("LLM provider test (provider=%q model=%q)\n", cfg.LLMProvider, model)
	for i, text := range script {
		start := time.Now()
		out := orchestrator.Turn(ctx, agent.TurnInput{
			Conversation: conv,
			Config:       policy,
			Message:      text,
			History:      history,
		})
		if out.SuggestedState != "" {
			conv.State = out.SuggestedState
		}
		fmt.Printf("\n[%d] customer: %s\n", i+1, text)
		fmt.Printf("    agent (%s, %v): %s\n", out.Source, time.Since(start).Round(time.Millisecond), out.Reply)
		if len(out.Actions) > 0 {
			fmt.Printf("    actions: %v\n", out.Actions)
		}
		fmt.Printf("    state=%s total=%s payment_link=%v\n", conv.State, conv.Cart.GrandTotal, out.RequiresPaymentLink)

		history = append(history,
			conversation.Message{Direction: conversation.DirectionInbound, Content: text},
			conversation.Message{Direction: conversation.DirectionOutbound, Content: out.Reply},
		)
		if out.Handoff {
			fmt.Printf("    handed off: %s\n", out.HandoffReason)
			os.Exit(0)
		}
	}
}
