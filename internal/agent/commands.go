package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

// CommandKind names one action marker the model may embed in its reply.
type CommandKind string

const (
	CommandAddToCart     CommandKind = "ADD_TO_CART"
	CommandSetAddress    CommandKind = "SET_ADDRESS"
	CommandConfirmOrder  CommandKind = "CONFIRM_ORDER"
	CommandCancelOrder   CommandKind = "CANCEL_ORDER"
	CommandApplyDiscount CommandKind = "APPLY_DISCOUNT"
	CommandHandoff       CommandKind = "HANDOFF"
)

// Command is one parsed marker. Start and End are byte offsets of the marker
// in the raw reply.
type Command struct {
	Kind     CommandKind
	Start    int
	End      int
	Raw      string
	Product  string
	Quantity int
	Address  string
	Percent  int
	Reason   string
}

var (
	addToCartPattern     = regexp.MustCompile(`(?i)\[ADD_TO_CART:\s*"([^"]+)"\s*,\s*(\d+)\]`)
	setAddressPattern    = regexp.MustCompile(`(?i)\[SET_ADDRESS:\s*"([^"]+)"\]`)
	confirmOrderPattern  = regexp.MustCompile(`(?i)\[CONFIRM_ORDER\]`)
	cancelOrderPattern   = regexp.MustCompile(`(?i)\[CANCEL_ORDER\]`)
	applyDiscountPattern = regexp.MustCompile(`(?i)\[APPLY_DISCOUNT:\s*(\d+)%?\]`)
	handoffPattern       = regexp.MustCompile(`(?i)\[HANDOFF(?::\s*"([^"]+)")?\]`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// ParseCommands returns every well-formed marker in text, ordered by
// position. Malformed markers are not returned and stay in the text.
func ParseCommands(text string) []Command {
	var cmds []Command
	collect := func(re *regexp.Regexp, build func(m []string) (Command, bool)) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			groups := make([]string, len(loc)/2)
			for i := range groups {
				if loc[2*i] >= 0 {
					groups[i] = text[loc[2*i]:loc[2*i+1]]
				}
			}
			cmd, ok := build(groups)
			if !ok {
				continue
			}
			cmd.Start, cmd.End, cmd.Raw = loc[0], loc[1], groups[0]
			cmds = append(cmds, cmd)
		}
	}

	collect(addToCartPattern, func(m []string) (Command, bool) {
		qty, err := strconv.Atoi(m[2])
		if err != nil {
			return Command{}, false
		}
		return Command{Kind: CommandAddToCart, Product: strings.TrimSpace(m[1]), Quantity: qty}, true
	})
	collect(setAddressPattern, func(m []string) (Command, bool) {
		return Command{Kind: CommandSetAddress, Address: strings.TrimSpace(m[1])}, true
	})
	collect(confirmOrderPattern, func([]string) (Command, bool) {
		return Command{Kind: CommandConfirmOrder}, true
	})
	collect(cancelOrderPattern, func([]string) (Command, bool) {
		return Command{Kind: CommandCancelOrder}, true
	})
	collect(applyDiscountPattern, func(m []string) (Command, bool) {
		pct, err := strconv.Atoi(m[1])
		if err != nil {
			return Command{}, false
		}
		return Command{Kind: CommandApplyDiscount, Percent: pct}, true
	})
	collect(handoffPattern, func(m []string) (Command, bool) {
		return Command{Kind: CommandHandoff, Reason: strings.TrimSpace(m[1])}, true
	})

	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Start < cmds[j].Start })

	// A quoted argument may swallow another marker; keep the outer one.
	out := cmds[:0]
	end := -1
	for _, cmd := range cmds {
		if cmd.Start < end {
			continue
		}
		out = append(out, cmd)
		end = cmd.End
	}
	return out
}

// Applied is what executing a reply's markers did to the conversation.
type Applied struct {
	Reply               string
	Actions             []string
	Handoff             bool
	HandoffReason       string
	RequiresPaymentLink bool
	SuggestedState      conversation.State
}

// ApplyCommands executes the markers in raw against conv in textual order and
// returns the customer-facing reply with the markers removed. An error means
// the catalog could not be read; conv may then be partially updated and the
// caller should restore its own snapshot.
func ApplyCommands(ctx context.Context, machine *conversation.Machine, conv *conversation.Conversation, cfg *tenant.Config, raw string) (Applied, error) {
	var (
		out      Applied
		body     strings.Builder
		appended []string
		last     int
	)
	for _, cmd := range ParseCommands(raw) {
		body.WriteString(raw[last:cmd.Start])
		last = cmd.End

		switch cmd.Kind {
		case CommandAddToCart:
			res, err := machine.AddToCartByName(ctx, conv, cmd.Product, cmd.Quantity)
			if err != nil {
				return Applied{}, fmt.Errorf("agent: add to cart: %w", err)
			}
			if !res.Success {
				body.WriteString(" " + res.Message + " ")
				continue
			}
			out.Actions = append(out.Actions, fmt.Sprintf("ADD_TO_CART:%s,%d", cmd.Product, cmd.Quantity))
			out.SuggestedState = res.NewState

		case CommandSetAddress:
			res := machine.SetDeliveryAddress(conv, cfg, cmd.Address, areaFor(cfg, cmd.Address))
			if !res.Success {
				body.WriteString(" " + res.Message + " ")
				continue
			}
			out.Actions = append(out.Actions, "SET_ADDRESS:"+cmd.Address)
			out.SuggestedState = res.NewState
			if conv.CartOrEmpty().IsReadyForConfirmation() {
				if prep := machine.PrepareForConfirmation(conv); prep.Success {
					out.SuggestedState = prep.NewState
					appended = append(appended, prep.Message)
				}
			}

		case CommandConfirmOrder:
			res := machine.ConfirmOrder(conv)
			if !res.Success {
				body.WriteString(" " + res.Message + " ")
				continue
			}
			out.Actions = append(out.Actions, "CONFIRM_ORDER")
			out.RequiresPaymentLink = out.RequiresPaymentLink || res.RequiresPaymentLink
			out.SuggestedState = res.NewState

		case CommandCancelOrder:
			res := machine.CancelOrder(conv)
			if !res.Success {
				body.WriteString(" " + res.Message + " ")
				continue
			}
			out.Actions = append(out.Actions, "CANCEL_ORDER")
			out.RequiresPaymentLink = false
			out.SuggestedState = res.NewState

		case CommandApplyDiscount:
			current := conv.CartOrEmpty()
			if current.IsEmpty() {
				continue
			}
			res := machine.ApplyDiscount(conv, cfg, current.LastIndex(), cmd.Percent)
			if !res.Success {
				body.WriteString(" " + res.Message + " ")
				continue
			}
			out.Actions = append(out.Actions, fmt.Sprintf("APPLY_DISCOUNT:%d", cmd.Percent))

		case CommandHandoff:
			out.Handoff = true
			out.HandoffReason = cmd.Reason
			if out.HandoffReason == "" {
				out.HandoffReason = conversation.DefaultHandoffReason
			}
			out.Actions = append(out.Actions, "HANDOFF")
		}
	}
	body.WriteString(raw[last:])

	out.Reply = collapseWhitespace(body.String())
	for _, extra := range appended {
		if out.Reply == "" {
			out.Reply = extra
			continue
		}
		out.Reply += "\n\n" + extra
	}
	return out, nil
}

func areaFor(cfg *tenant.Config, address string) string {
	if cfg == nil {
		return ""
	}
	return cfg.InferArea(address)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
