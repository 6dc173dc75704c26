package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

const (
	replyDefaultGreeting = "Hello! Welcome to our store. How can I help you today?"
	replyCancelled       = "No problem! Your order has been cancelled. Is there anything else I can help you with?"
	replyEmptyCart       = "Your cart is empty. Would you like to see our products?"
	replyAddedFollowUp   = "Would you like anything else, or should we proceed with delivery?"
	replyPricingNoItems  = "I'd be happy to help with pricing! What product are you interested in?"
	replyAskAddress      = "Please provide your delivery address and I'll calculate the delivery fee."
	replyPayment         = "Once you confirm your order, I'll send you a secure payment link. You can pay with card or bank transfer."
	replyConfirmed       = "Order confirmed! I'll send you a payment link shortly."
	replyHandoff         = "Let me connect you with our team. Someone will respond shortly!"
	replyThanks          = "You're welcome! Is there anything else I can help you with?"
	replyCatalogEmpty    = "Our product catalog is being updated. Please check back soon!"
	replyMenu            = "I'm here to help! You can:\n- View our products\n- Place an order\n- Ask about delivery\n\nWhat would you like to do?"

	priceListLimit = 5
)

var addressCaptureStopWords = []string{"price", "cost", "how much", "pay", "transfer", "help", "human", "speak", "thank", "product", "menu"}

var (
	orderIntentPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:pieces?|pcs?|x)?\s*(?:of\s+)?(.+)`)
	greetingPattern    = regexp.MustCompile(`(?i)\b(hi|hello|hey|good morning|good afternoon|good evening|howdy|greetings|what's up|wassup|sup)\b`)
)

// RuleResponder answers without a text-completion backend. It covers the
// whole purchase path: greet, price, add, address, confirm.
type RuleResponder struct {
	machine *conversation.Machine
	catalog catalog.Lookup
}

func NewRuleResponder(machine *conversation.Machine, lookup catalog.Lookup) *RuleResponder {
	if machine == nil || lookup == nil {
		panic("agent: rule responder requires machine and catalog")
	}
	return &RuleResponder{machine: machine, catalog: lookup}
}

// Respond picks the first matching rule for text and applies it to conv.
func (r *RuleResponder) Respond(ctx context.Context, conv *conversation.Conversation, cfg *tenant.Config, text string) (Applied, error) {
	if cfg == nil {
		cfg = tenant.DefaultConfig(conv.TenantID)
	}
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	state := conv.State
	current := conv.CartOrEmpty()

	if (lower == "yes" || strings.Contains(lower, "confirm")) && state == conversation.StateConfirmingOrder {
		res := r.machine.ConfirmOrder(conv)
		return Applied{
			Reply:               res.Message,
			RequiresPaymentLink: res.RequiresPaymentLink,
			SuggestedState:      res.NewState,
			Actions:             actionIf(res.Success, "CONFIRM_ORDER"),
		}, nil
	}

	if strings.Contains(lower, "cancel") || strings.Contains(lower, "forget it") || lower == "no" {
		if state.IsOrdering() {
			res := r.machine.CancelOrder(conv)
			return Applied{Reply: replyCancelled, SuggestedState: res.NewState, Actions: []string{"CANCEL_ORDER"}}, nil
		}
	}

	if strings.Contains(lower, "cart") || (strings.Contains(lower, "order") && strings.Contains(lower, "what")) {
		if current.IsEmpty() {
			return Applied{Reply: replyEmptyCart}, nil
		}
		return Applied{Reply: current.Summary()}, nil
	}

	if state == conversation.StateCollectingAddress && !current.IsEmpty() && looksLikeAddress(trimmed) && !mentionsIntent(lower) {
		res := r.machine.SetDeliveryAddress(conv, cfg, trimmed, cfg.InferArea(trimmed))
		if res.Success {
			out := Applied{Reply: res.Message, SuggestedState: res.NewState, Actions: []string{"SET_ADDRESS:" + trimmed}}
			if prep := r.machine.PrepareForConfirmation(conv); prep.Success {
				out.Reply = prep.Message
				out.SuggestedState = prep.NewState
			}
			return out, nil
		}
	}

	m := orderIntentPattern.FindStringSubmatch(trimmed)
	if m != nil || strings.Contains(lower, "want") || strings.Contains(lower, "order") || strings.Contains(lower, "buy") {
		qty, query := 1, trimmed
		if m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				qty = n
			}
			query = strings.TrimSpace(m[2])
		}
		products, err := r.catalog.FindActiveByTenant(ctx, conv.TenantID)
		if err != nil {
			return Applied{}, fmt.Errorf("agent: list products: %w", err)
		}
		if product, ok := catalog.MatchByName(products, query); ok {
			res, err := r.machine.AddToCart(ctx, conv, product.ID, qty)
			if err != nil {
				return Applied{}, err
			}
			if !res.Success {
				return Applied{Reply: res.Message}, nil
			}
			return Applied{
				Reply:          res.Message + "\n\n" + res.Cart.Summary() + "\n\n" + replyAddedFollowUp,
				SuggestedState: res.NewState,
				Actions:        []string{fmt.Sprintf("ADD_TO_CART:%s,%d", product.Name, qty)},
			}, nil
		}
	}

	switch {
	case greetingPattern.MatchString(lower):
		if strings.TrimSpace(cfg.Greeting) != "" {
			return Applied{Reply: cfg.Greeting}, nil
		}
		return Applied{Reply: replyDefaultGreeting}, nil

	case strings.Contains(lower, "price") || strings.Contains(lower, "cost") || strings.Contains(lower, "how much"):
		products, err := r.catalog.FindActiveByTenant(ctx, conv.TenantID)
		if err != nil {
			return Applied{}, fmt.Errorf("agent: list products: %w", err)
		}
		if len(products) == 0 {
			return Applied{Reply: replyPricingNoItems}, nil
		}
		if len(products) > priceListLimit {
			products = products[:priceListLimit]
		}
		return Applied{Reply: productList("Here are our products:\n\n", products, "\nWhich one interests you?")}, nil

	case strings.Contains(lower, "delivery") || strings.Contains(lower, "address"):
		if current.IsEmpty() {
			dispatch := cfg.DispatchTime
			if dispatch == "" {
				dispatch = tenant.DefaultDispatchTime
			}
			return Applied{Reply: "We dispatch orders within " + dispatch + ". Would you like to place an order?"}, nil
		}
		if res := r.machine.RequestAddress(conv); res.Success {
			return Applied{Reply: res.Message, SuggestedState: res.NewState}, nil
		}
		return Applied{Reply: replyAskAddress}, nil

	case strings.Contains(lower, "pay") || strings.Contains(lower, "transfer"):
		return Applied{Reply: replyPayment}, nil

	case strings.Contains(lower, "help") || strings.Contains(lower, "human") || strings.Contains(lower, "speak"):
		return Applied{
			Reply:         replyHandoff,
			Handoff:       true,
			HandoffReason: conversation.DefaultHandoffReason,
			Actions:       []string{"HANDOFF"},
		}, nil

	case strings.Contains(lower, "thank"):
		return Applied{Reply: replyThanks}, nil

	case strings.Contains(lower, "product") || strings.Contains(lower, "menu") || strings.Contains(lower, "list"):
		products, err := r.catalog.FindActiveByTenant(ctx, conv.TenantID)
		if err != nil {
			return Applied{}, fmt.Errorf("agent: list products: %w", err)
		}
		if len(products) == 0 {
			return Applied{Reply: replyCatalogEmpty}, nil
		}
		return Applied{Reply: productList("Here's what we have:\n\n", products, "\nWhich one would you like?")}, nil
	}

	return Applied{Reply: replyMenu}, nil
}

func productList(header string, products []catalog.Product, footer string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, p := range products {
		fmt.Fprintf(&b, "- %s: NGN %s\n", p.Name, cart.WholeUnits(p.Price))
	}
	b.WriteString(footer)
	return b.String()
}

// looksLikeAddress accepts a statement with at least two words and a letter.
// Questions are left to the other rules.
func looksLikeAddress(text string) bool {
	if strings.Contains(text, "?") || len(strings.Fields(text)) < 2 {
		return false
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// mentionsIntent reports keywords that route to another rule even while an
// address is expected.
func mentionsIntent(lower string) bool {
	for _, kw := range addressCaptureStopWords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func actionIf(ok bool, action string) []string {
	if !ok {
		return nil
	}
	return []string{action}
}
