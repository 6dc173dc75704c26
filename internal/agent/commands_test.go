package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
)

func TestParseCommandsOrderAndSpans(t *testing.T) {
	text := `Sure! [add_to_cart: "Beaded Bag", 2] and [ADD_TO_CART: "Ankara Print Dress", 1] [HANDOFF] [apply_discount: 5%]`
	cmds := ParseCommands(text)
	require.Len(t, cmds, 4)

	assert.Equal(t, CommandAddToCart, cmds[0].Kind)
	assert.Equal(t, "Beaded Bag", cmds[0].Product)
	assert.Equal(t, 2, cmds[0].Quantity)
	assert.Equal(t, `[add_to_cart: "Beaded Bag", 2]`, text[cmds[0].Start:cmds[0].End])
	assert.Equal(t, "Ankara Print Dress", cmds[1].Product)
	assert.Equal(t, CommandHandoff, cmds[2].Kind)
	assert.Empty(t, cmds[2].Reason)
	assert.Equal(t, CommandApplyDiscount, cmds[3].Kind)
	assert.Equal(t, 5, cmds[3].Percent)
	for i := 1; i < len(cmds); i++ {
		assert.Less(t, cmds[i-1].Start, cmds[i].Start)
	}
}

func TestParseCommandsIgnoresMalformedMarkers(t *testing.T) {
	for _, text := range []string{
		`[ADD_TO_CART: Beaded Bag, 2]`,
		`[ADD_TO_CART: "Beaded Bag"]`,
		`[SET_ADDRESS: 12 Allen Avenue]`,
		`[CONFIRM ORDER]`,
		`[APPLY_DISCOUNT: ten]`,
		`[ADD_TO_CART: "Bag", 99999999999999999999]`,
	} {
		if cmds := ParseCommands(text); len(cmds) != 0 {
			t.Fatalf("expected no commands for %q, got %+v", text, cmds)
		}
	}
}

func TestParseCommandsHandoffReason(t *testing.T) {
	cmds := ParseCommands(`One moment [HANDOFF: "bulk order pricing"]`)
	require.Len(t, cmds, 1)
	assert.Equal(t, "bulk order pricing", cmds[0].Reason)
}

func TestApplyCommandsExecutesAddsInTextualOrder(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()

	raw := "Great choice!  [ADD_TO_CART: \"Ankara Print Dress\", 1]\n\n[ADD_TO_CART: \"Beaded Bag\", 2] Anything else?"
	out, err := ApplyCommands(context.Background(), machine, conv, testConfig(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Great choice! Anything else?", out.Reply)
	require.Len(t, conv.Cart.Items, 2)
	assert.Equal(t, "p-dress", conv.Cart.Items[0].ProductID)
	assert.Equal(t, "p-bag", conv.Cart.Items[1].ProductID)
	assert.Equal(t, conversation.StateAddingToCart, conv.State)
	assert.Equal(t, conversation.StateAddingToCart, out.SuggestedState)
	assert.Equal(t, []string{"ADD_TO_CART:Ankara Print Dress,1", "ADD_TO_CART:Beaded Bag,2"}, out.Actions)
}

func TestApplyCommandsSplicesAddFailures(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()

	out, err := ApplyCommands(context.Background(), machine, conv, testConfig(),
		`Adding it now [ADD_TO_CART: "Beaded Bag", 5] for you.`)
	require.NoError(t, err)
	assert.Equal(t, "Adding it now Sorry, we only have 3 of Beaded Bag in stock. for you.", out.Reply)
	assert.True(t, conv.Cart.IsEmpty())
	assert.Empty(t, out.Actions)

	out, err = ApplyCommands(context.Background(), machine, conv, testConfig(),
		`[ADD_TO_CART: "Velvet Gown", 1]`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Reply, `I couldn't find "Velvet Gown". Here are our available products:`), out.Reply)
	assert.NotContains(t, out.Reply, "\n")
}

func TestApplyCommandsLeavesMalformedMarkersAsText(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()

	out, err := ApplyCommands(context.Background(), machine, conv, testConfig(), `Okay [ADD_TO_CART: Beaded Bag] done`)
	require.NoError(t, err)
	assert.Equal(t, `Okay [ADD_TO_CART: Beaded Bag] done`, out.Reply)
	assert.True(t, conv.Cart.IsEmpty())
}

func TestApplyCommandsAddressThenConfirm(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()
	ctx := context.Background()
	cfg := testConfig()

	_, err := ApplyCommands(ctx, machine, conv, cfg, `[ADD_TO_CART: "Ankara Print Dress", 1]`)
	require.NoError(t, err)

	out, err := ApplyCommands(ctx, machine, conv, cfg, `Got it! [SET_ADDRESS: "5 Admiralty Way, Lekki Phase 1"]`)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateConfirmingOrder, conv.State)
	assert.Equal(t, conversation.StateConfirmingOrder, out.SuggestedState)
	assert.Equal(t, "Lekki", conv.Cart.DeliveryArea)
	assert.Equal(t, "2500", conv.Cart.DeliveryFee.String())
	assert.True(t, strings.HasPrefix(out.Reply, "Got it!\n\n*Your Order:*"), out.Reply)
	assert.Contains(t, out.Reply, "*Delivery to:* 5 Admiralty Way, Lekki Phase 1")
	assert.False(t, out.RequiresPaymentLink)

	out, err = ApplyCommands(ctx, machine, conv, cfg, `Wonderful, confirming now. [CONFIRM_ORDER]`)
	require.NoError(t, err)
	assert.True(t, out.RequiresPaymentLink)
	assert.Equal(t, conversation.StateAwaitingPayment, conv.State)
	assert.True(t, conv.Cart.Confirmed)
	assert.Equal(t, "Wonderful, confirming now.", out.Reply)
}

func TestApplyCommandsConfirmOutsideReviewIsSpliced(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()

	out, err := ApplyCommands(context.Background(), machine, conv, testConfig(), `Done! [CONFIRM_ORDER]`)
	require.NoError(t, err)
	assert.False(t, out.RequiresPaymentLink)
	assert.Empty(t, out.Actions)
	assert.Equal(t, conversation.StateGreeting, conv.State)
	assert.Equal(t, "Done! Please review your order first before confirming.", out.Reply)
}

func TestApplyCommandsSplicesAddressFailures(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()

	out, err := ApplyCommands(context.Background(), machine, conv, testConfig(),
		`Noted. [SET_ADDRESS: "5 Admiralty Way, Lekki Phase 1"] Thanks!`)
	require.NoError(t, err)
	assert.Equal(t, "Noted. Your cart is empty. Please add some items first! Thanks!", out.Reply)
	assert.Empty(t, out.Actions)
	assert.Empty(t, conv.CartOrEmpty().DeliveryAddress)
	assert.Empty(t, out.SuggestedState)
}

func TestApplyCommandsCancelAfterPaymentIsSpliced(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()
	ctx := context.Background()

	_, err := ApplyCommands(ctx, machine, conv, testConfig(), `[ADD_TO_CART: "Ankara Print Dress", 1]`)
	require.NoError(t, err)
	machine.CompleteOrder(conv, "WA-1")

	out, err := ApplyCommands(ctx, machine, conv, testConfig(), `Okay. [CANCEL_ORDER]`)
	require.NoError(t, err)
	assert.Empty(t, out.Actions)
	assert.Equal(t, "Okay. Your order has already been paid, so it can no longer be cancelled.", out.Reply)
	assert.Equal(t, 1, conv.Cart.TotalItemCount())
}

func TestApplyCommandsDiscountTargetsLastLine(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()
	ctx := context.Background()
	cfg := testConfig()

	_, err := ApplyCommands(ctx, machine, conv, cfg, `[ADD_TO_CART: "Ankara Print Dress", 1] [ADD_TO_CART: "Beaded Bag", 1]`)
	require.NoError(t, err)

	out, err := ApplyCommands(ctx, machine, conv, cfg, `For you, 5% off! [APPLY_DISCOUNT: 5%]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"APPLY_DISCOUNT:5"}, out.Actions)
	assert.True(t, conv.Cart.Items[0].DiscountPercent.IsZero())
	assert.Equal(t, "5", conv.Cart.Items[1].DiscountPercent.String())

	out, err = ApplyCommands(ctx, machine, conv, cfg, `Okay! [APPLY_DISCOUNT: 40]`)
	require.NoError(t, err)
	assert.Equal(t, "Okay! Sorry, the maximum discount I can offer is 10%.", out.Reply)
	assert.Equal(t, "5", conv.Cart.Items[1].DiscountPercent.String())
}

func TestApplyCommandsCancelAndHandoff(t *testing.T) {
	machine := conversation.NewMachine(testCatalog())
	conv := newConversation()
	ctx := context.Background()

	_, err := ApplyCommands(ctx, machine, conv, testConfig(), `[ADD_TO_CART: "Ankara Print Dress", 1]`)
	require.NoError(t, err)

	out, err := ApplyCommands(ctx, machine, conv, testConfig(), `No wahala. [CANCEL_ORDER] [HANDOFF]`)
	require.NoError(t, err)
	assert.True(t, conv.Cart.IsEmpty())
	assert.Equal(t, conversation.StateBrowsing, out.SuggestedState)
	assert.True(t, out.Handoff)
	assert.Equal(t, conversation.DefaultHandoffReason, out.HandoffReason)
	assert.Equal(t, "No wahala.", out.Reply)
}
