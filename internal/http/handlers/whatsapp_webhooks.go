package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/internal/messaging/whatsapp"
	observemetrics "github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const maxWebhookBody = 1 << 20

type inboundEnqueuer interface {
	EnqueueInbound(ctx context.Context, msg events.InboundMessageV1) error
}

type signatureVerifier interface {
	VerifySignature(header string, payload []byte) error
}

// WhatsAppWebhookHandler accepts Cloud API deliveries and queues one job per
// customer message.
type WhatsAppWebhookHandler struct {
	verifyToken string
	verifier    signatureVerifier
	queue       inboundEnqueuer
	logger      *logging.Logger
	metrics     *observemetrics.CommerceMetrics
}

type WhatsAppWebhookConfig struct {
	VerifyToken string
	Verifier    signatureVerifier
	Queue       inboundEnqueuer
	Logger      *logging.Logger
	Metrics     *observemetrics.CommerceMetrics
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Queue == nil {
		panic("handlers: inbound queue required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		verifyToken: cfg.VerifyToken,
		verifier:    cfg.Verifier,
		queue:       cfg.Queue,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Verify answers the subscription handshake Meta performs when the webhook
// URL is registered.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Warn("whatsapp webhook verification rejected", "mode", mode)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive handles POST deliveries.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds()) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.verifier != nil {
		if err := h.verifier.VerifySignature(r.Header.Get("X-Hub-Signature-256"), body); err != nil {
			h.logger.Warn("invalid whatsapp webhook signature", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if statuses := payload.Statuses(); len(statuses) > 0 {
		h.logger.Debug("ignoring whatsapp status updates", "count", len(statuses))
	}

	failed := 0
	for _, msg := range payload.InboundMessages() {
		job := events.InboundMessageV1{
			MessageID:     msg.MessageID,
			PhoneNumberID: msg.PhoneNumberID,
			From:          msg.From,
			ProfileName:   msg.ProfileName,
			Type:          msg.Type,
			Content:       msg.Content,
			MediaID:       msg.MediaID,
			Timestamp:     msg.ReceivedAt,
		}
		if err := h.queue.EnqueueInbound(r.Context(), job); err != nil {
			failed++
			h.logger.Error("failed to enqueue whatsapp message", "error", err,
				"message_id", msg.MessageID,
				"phone_number_id", msg.PhoneNumberID,
			)
			h.metrics.ObserveInbound("enqueue_failed")
			continue
		}
		h.metrics.ObserveInbound("queued")
	}
	if failed > 0 {
		// Meta redelivers on non-2xx; already queued messages are deduplicated downstream.
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
