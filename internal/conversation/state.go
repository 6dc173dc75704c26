package conversation

import "strings"

// State is the position of a conversation in the sales flow.
type State string

const (
	StateGreeting          State = "greeting"
	StateBrowsing          State = "browsing"
	StateProductInquiry    State = "product_inquiry"
	StateAddingToCart      State = "adding_to_cart"
	StateCollectingAddress State = "collecting_address"
	StateConfirmingOrder   State = "confirming_order"
	StateAwaitingPayment   State = "awaiting_payment"
	StateCompleted         State = "completed"
	StateHandedOff         State = "handed_off"
	StateAbandoned         State = "abandoned"
)

var allStates = []State{
	StateGreeting, StateBrowsing, StateProductInquiry, StateAddingToCart,
	StateCollectingAddress, StateConfirmingOrder, StateAwaitingPayment,
	StateCompleted, StateHandedOff, StateAbandoned,
}

// ParseState is case-insensitive. Unknown or blank values map to greeting.
func ParseState(raw string) State {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range allStates {
		if string(s) == v {
			return s
		}
	}
	return StateGreeting
}

func (s State) String() string { return string(s) }

// CanAddToCart is true before the customer starts giving delivery details.
func (s State) CanAddToCart() bool {
	switch s {
	case StateGreeting, StateBrowsing, StateProductInquiry, StateAddingToCart:
		return true
	}
	return false
}

// IsActive is false once automation has finished with the conversation.
func (s State) IsActive() bool {
	return !s.IsTerminal()
}

// IsOrdering covers the states where a cart is being assembled.
func (s State) IsOrdering() bool {
	switch s {
	case StateAddingToCart, StateCollectingAddress, StateConfirmingOrder:
		return true
	}
	return false
}

// IsTerminal states get no automated replies.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateHandedOff, StateAbandoned:
		return true
	}
	return false
}

// cartFrozen is true once the order has been handed to payment.
func (s State) cartFrozen() bool {
	return s == StateAwaitingPayment || s.IsTerminal()
}
