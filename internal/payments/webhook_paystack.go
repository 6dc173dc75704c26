package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/events"
	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/internal/payments/paystack"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	providerPaystack = "paystack"
	maxWebhookBody   = 1 << 20
)

type signatureVerifier interface {
	VerifySignature(header string, payload []byte) error
}

// PaymentEnqueuer hands a verified payment to the workers.
type PaymentEnqueuer interface {
	EnqueuePayment(ctx context.Context, evt events.PaymentSucceededV1) error
}

// PaystackWebhookHandler validates gateway notifications and queues them.
type PaystackWebhookHandler struct {
	verifier  signatureVerifier
	processed events.Tracker
	queue     PaymentEnqueuer
	metrics   *metrics.CommerceMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewPaystackWebhookHandler(verifier signatureVerifier, processed events.Tracker, queue PaymentEnqueuer, m *metrics.CommerceMetrics, logger *logging.Logger) *PaystackWebhookHandler {
	if verifier == nil {
		panic("payments: signature verifier required")
	}
	if processed == nil {
		panic("payments: processed tracker required")
	}
	if queue == nil {
		panic("payments: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PaystackWebhookHandler{
		verifier:  verifier,
		processed: processed,
		queue:     queue,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *PaystackWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(providerPaystack, time.Since(start).Seconds())
	}()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.VerifySignature(r.Header.Get(paystack.SignatureHeader), payload); err != nil {
		h.logger.Warn("paystack webhook signature rejected", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt paystack.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode paystack event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !evt.Successful() {
		h.logger.Info("ignoring paystack event", "event", evt.Event, "status", evt.Data.Status, "reference", evt.Data.Reference)
		w.WriteHeader(http.StatusOK)
		return
	}

	reference := strings.TrimSpace(evt.Data.Reference)
	if reference == "" {
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	fresh, err := h.processed.MarkProcessed(r.Context(), providerPaystack, reference)
	if err != nil {
		h.logger.Error("processed lookup failed", "error", err, "reference", reference)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !fresh {
		h.logger.Info("duplicate paystack event", "reference", reference)
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := events.PaymentSucceededV1{
		EventID:     strconv.FormatInt(evt.Data.ID, 10),
		Provider:    providerPaystack,
		Reference:   reference,
		OrderNumber: evt.Data.OrderNumber(),
		Channel:     evt.Data.Channel,
		AmountKobo:  evt.Data.Amount,
		PaidAt:      evt.Data.PaidTime(h.now()),
	}
	if err := h.queue.EnqueuePayment(r.Context(), msg); err != nil {
		h.logger.Error("failed to enqueue payment", "error", err, "reference", reference)
		if ferr := h.processed.Forget(r.Context(), providerPaystack, reference); ferr != nil {
			h.logger.Error("failed to release processed marker", "error", ferr, "reference", reference)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
