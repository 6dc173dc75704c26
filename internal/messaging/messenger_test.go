package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/whatsapp-commerce/internal/conversation"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging/whatsapp"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/tenant"
)

type stubTextSender struct {
	phoneNumberID, token, to, text string
	err                            error
}

func (s *stubTextSender) SendText(_ context.Context, phoneNumberID, token, to, text string) (*whatsapp.SendResponse, error) {
	s.phoneNumberID, s.token, s.to, s.text = phoneNumberID, token, to, text
	if s.err != nil {
		return nil, s.err
	}
	resp := &whatsapp.SendResponse{}
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: "wamid.out"})
	return resp, nil
}

type stubAppender struct {
	messages []*conversation.Message
	err      error
}

func (s *stubAppender) Append(_ context.Context, msg *conversation.Message) error {
	s.messages = append(s.messages, msg)
	return s.err
}

func testDirectory() *tenant.MemoryDirectory {
	return tenant.NewMemoryDirectory(tenant.Channel{TenantID: "t1", PhoneNumberID: "pn-1", AccessToken: "tok-1"})
}

func TestWhatsAppSenderUsesTenantChannel(t *testing.T) {
	client := &stubTextSender{}
	sender := NewWhatsAppSender(client, testDirectory(), metrics.NewCommerceMetrics(prometheus.NewRegistry()), nil)

	id, err := sender.SendReply(context.Background(), OutboundReply{TenantID: "t1", To: "2348011111111", Body: "Hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "wamid.out" {
		t.Fatalf("message id = %q", id)
	}
	if client.phoneNumberID != "pn-1" || client.token != "tok-1" || client.to != "2348011111111" || client.text != "Hello" {
		t.Fatalf("unexpected send %+v", client)
	}
}

func TestWhatsAppSenderErrors(t *testing.T) {
	sender := NewWhatsAppSender(&stubTextSender{}, testDirectory(), nil, nil)
	if _, err := sender.SendReply(context.Background(), OutboundReply{TenantID: "unknown", To: "1", Body: "x"}); !errors.Is(err, tenant.ErrUnknownChannel) {
		t.Fatalf("expected unknown channel, got %v", err)
	}
	if _, err := sender.SendReply(context.Background(), OutboundReply{TenantID: "t1", To: "1", Body: "  "}); err == nil {
		t.Fatalf("expected blank body error")
	}

	failing := NewWhatsAppSender(&stubTextSender{err: errors.New("graph down")}, testDirectory(), nil, nil)
	if _, err := failing.SendReply(context.Background(), OutboundReply{TenantID: "t1", To: "1", Body: "x"}); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestPersistingMessengerLogsDeliveredReplies(t *testing.T) {
	log := &stubAppender{}
	messenger := WrapWithPersistence(NewWhatsAppSender(&stubTextSender{}, testDirectory(), nil, nil), log, nil)

	if _, err := messenger.SendReply(context.Background(), OutboundReply{TenantID: "t1", ConversationID: "c1", To: "1", Body: "Hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(log.messages) != 1 {
		t.Fatalf("expected one logged message, got %d", len(log.messages))
	}
	got := log.messages[0]
	if got.Direction != conversation.DirectionOutbound || got.UpstreamID != "wamid.out" || got.Content != "Hi" {
		t.Fatalf("unexpected logged message %+v", got)
	}

	if _, err := messenger.SendReply(context.Background(), OutboundReply{TenantID: "t1", To: "1", Body: "no conversation"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(log.messages) != 1 {
		t.Fatalf("replies without a conversation must not be logged")
	}
}

func TestPersistingMessengerSkipsFailedSends(t *testing.T) {
	log := &stubAppender{}
	messenger := WrapWithPersistence(NewWhatsAppSender(&stubTextSender{err: errors.New("down")}, testDirectory(), nil, nil), log, nil)
	if _, err := messenger.SendReply(context.Background(), OutboundReply{TenantID: "t1", ConversationID: "c1", To: "1", Body: "Hi"}); err == nil {
		t.Fatalf("expected send error")
	}
	if len(log.messages) != 0 {
		t.Fatalf("failed sends must not be logged")
	}
}

func TestPersistingMessengerIgnoresLogFailure(t *testing.T) {
	log := &stubAppender{err: errors.New("db down")}
	messenger := WrapWithPersistence(NewWhatsAppSender(&stubTextSender{}, testDirectory(), nil, nil), log, nil)
	if _, err := messenger.SendReply(context.Background(), OutboundReply{TenantID: "t1", ConversationID: "c1", To: "1", Body: "Hi"}); err != nil {
		t.Fatalf("log failure must not fail the send: %v", err)
	}
}

func TestNormalizeWhatsAppID(t *testing.T) {
	if got := NormalizeWhatsAppID(" +234 (801) 111-1111 "); got != "2348011111111" {
		t.Fatalf("got %q", got)
	}
}
