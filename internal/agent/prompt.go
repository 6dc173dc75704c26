package agent

import (
	"fmt"
	"strings"

	"github.com/wolfman30/whatsapp-commerce/internal/cart"
	"github.com/wolfman30/whatsapp-commerce/internal/catalog"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

// lowStockThreshold marks tracked products with fewer units as nearly gone.
const lowStockThreshold = 5

// PromptInput is everything the system prompt is rendered from.
type PromptInput struct {
	Config   *tenant.Config
	State    conversation.State
	Cart     *cart.OrderContext
	Products []catalog.Product
}

var stateGuidance = map[conversation.State]string{
	conversation.StateGreeting:          "Customer just said hi. Greet warmly and ask what they're looking for.",
	conversation.StateBrowsing:          "Customer is browsing. Help them find products, answer questions, encourage purchase.",
	conversation.StateAddingToCart:      "Customer has items in cart. Ask if they want more or are ready to checkout.",
	conversation.StateCollectingAddress: "Need delivery address. Ask for their full address with area/city.",
	conversation.StateConfirmingOrder:   "Waiting for confirmation. Show order summary and ask them to confirm.",
	conversation.StateAwaitingPayment:   "Payment link was sent. Help with payment questions, encourage completion. NEVER give bank account details - only say 'check the payment link I sent'.",
}

const defaultGuidance = "Help the customer and guide them toward making a purchase."

// BuildSystemPrompt renders the persona, rules, catalog, cart and action
// grammar for one turn.
func BuildSystemPrompt(in PromptInput) string {
	cfg := in.Config
	if cfg == nil {
		cfg = tenant.DefaultConfig("")
	}
	agentName := cfg.AgentName
	if agentName == "" {
		agentName = tenant.DefaultAgentName
	}
	businessName := cfg.DisplayName()

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a friendly WhatsApp sales assistant for %s in Nigeria. You're warm, helpful, and great at closing sales.\n\n", agentName, businessName)

	b.WriteString("CRITICAL RULES:\n")
	b.WriteString("1. Keep responses SHORT (1-2 sentences max). WhatsApp users hate long messages.\n")
	b.WriteString("2. Be conversational and warm - use light Nigerian English flavor.\n")
	b.WriteString("3. Always guide toward a purchase - ask if they want to order, offer help.\n")
	b.WriteString("4. NEVER invent products or prices not in your catalog.\n")
	b.WriteString("5. Use emojis sparingly (1-2 max per message).\n")
	b.WriteString("6. NEVER invent or fabricate bank account details, payment info, or any business information not provided below.\n")
	b.WriteString("7. For payments: ONLY tell customers 'I'll send you a payment link shortly' - NEVER provide manual bank transfer details.\n")
	if cfg.NegotiationEnabled {
		fmt.Fprintf(&b, "8. You may negotiate, but never offer more than %d%% off.\n", cfg.MaxDiscountPercent)
	} else {
		b.WriteString("8. Prices are fixed. Politely decline discount requests.\n")
	}
	b.WriteString("\n")

	if len(in.Products) > 0 {
		b.WriteString("YOUR PRODUCTS:\n")
		for _, p := range in.Products {
			fmt.Fprintf(&b, "• %s - ₦%s", p.Name, cart.WholeUnits(p.Price))
			if p.TrackInventory {
				switch {
				case p.Quantity <= 0:
					b.WriteString(" [SOLD OUT]")
				case p.Quantity < lowStockThreshold:
					fmt.Fprintf(&b, " [Only %d left!]", p.Quantity)
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if in.Cart != nil && !in.Cart.IsEmpty() {
		b.WriteString("CUSTOMER'S CART: " + in.Cart.Summary() + "\n")
		if in.Cart.DeliveryAddress != "" {
			b.WriteString("Delivery to: " + in.Cart.DeliveryAddress + "\n")
		}
		b.WriteString("\n")
	}

	dispatch := cfg.DispatchTime
	if dispatch == "" {
		dispatch = tenant.DefaultDispatchTime
	}
	fmt.Fprintf(&b, "DELIVERY: ₦%s fee, ships within %s\n", cart.WholeUnits(cfg.DefaultDeliveryFee), dispatch)
	if len(cfg.DeliveryAreas) > 0 {
		areas := make([]string, 0, len(cfg.DeliveryAreas))
		for _, area := range cfg.DeliveryAreas {
			areas = append(areas, fmt.Sprintf("%s ₦%s", area.Name, cart.WholeUnits(area.Fee)))
		}
		b.WriteString("Area fees: " + strings.Join(areas, ", ") + "\n")
	}
	b.WriteString("\n")

	b.WriteString("ACTIONS (include in your response when appropriate):\n")
	b.WriteString("[ADD_TO_CART: \"exact product name\", quantity] - when customer wants to buy\n")
	b.WriteString("[SET_ADDRESS: \"full address\"] - when customer gives address\n")
	b.WriteString("[CONFIRM_ORDER] - when customer says yes/confirm/proceed\n")
	b.WriteString("[CANCEL_ORDER] - when customer wants to cancel their order\n")
	if cfg.NegotiationEnabled {
		b.WriteString("[APPLY_DISCOUNT: percent] - when you agree a discount on the last item added\n")
	}
	b.WriteString("[HANDOFF: \"reason\"] - only for complex issues needing human help\n\n")

	guidance, ok := stateGuidance[in.State]
	if !ok {
		guidance = defaultGuidance
	}
	b.WriteString("CURRENT SITUATION: " + guidance + "\n\n")

	b.WriteString("EXAMPLE GOOD RESPONSES:\n")
	fmt.Fprintf(&b, "• Greeting: \"Hi! 👋 Welcome to %s! What can I help you find today?\"\n", businessName)
	b.WriteString("• Product inquiry: \"Yes! Our [Product] is ₦X. Very popular! Want me to add it to your cart?\"\n")
	b.WriteString("• After adding to cart: \"Added! ✓ Anything else, or should we proceed to checkout?\"\n")
	b.WriteString("• Asking for address: \"Great! Where should we deliver? Please share your full address.\"\n")
	return b.String()
}

// historyMessages converts the stored transcript plus the new inbound text
// into chat turns.
func historyMessages(history []conversation.Message, current string) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		role := ChatRoleAssistant
		if msg.Direction == conversation.DirectionInbound {
			role = ChatRoleUser
		}
		out = append(out, ChatMessage{Role: role, Content: msg.Content})
	}
	return append(out, ChatMessage{Role: ChatRoleUser, Content: current})
}
