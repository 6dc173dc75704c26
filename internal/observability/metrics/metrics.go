package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics exposes counters/histograms for the chat-commerce flows.
type CommerceMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	agentTurns     *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	ordersTotal    *prometheus.CounterVec
	paymentsTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	abandonedTotal prometheus.Counter
	handoffsTotal  prometheus.Counter
}

func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	m := &CommerceMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Inbound WhatsApp messages by processing status",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"status"}),
		agentTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Sales agent turns by reply source",
		}, []string{"source", "reason"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "commerce",
			Subsystem: "agent",
			Name:      "llm_latency_seconds",
			Help:      "Latency of text-completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"status"}),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created from confirmed carts",
		}, []string{"payment_link"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "payments",
			Name:      "reconciled_total",
			Help:      "Payment notifications by reconciliation outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "commerce",
			Subsystem: "http",
			Name:      "webhook_latency_seconds",
			Help:      "Time spent acknowledging webhooks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		abandonedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "conversations",
			Name:      "abandoned_total",
			Help:      "Conversations closed by the abandonment sweep",
		}),
		handoffsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "commerce",
			Subsystem: "conversations",
			Name:      "handoffs_total",
			Help:      "Conversations handed to a human operator",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.agentTurns, m.llmLatency,
		m.ordersTotal, m.paymentsTotal, m.webhookLatency, m.abandonedTotal, m.handoffsTotal)
	return m
}

func (m *CommerceMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *CommerceMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

// ObserveAgentTurn counts one reply. source is "llm" or "rules"; reason says
// why the rules answered ("unconfigured", "error", "timeout", "blank").
func (m *CommerceMetrics) ObserveAgentTurn(source, reason string) {
	if m == nil {
		return
	}
	m.agentTurns.WithLabelValues(source, reason).Inc()
}

func (m *CommerceMetrics) ObserveLLMLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(status).Observe(seconds)
}

func (m *CommerceMetrics) ObserveOrderCreated(hasPaymentLink bool) {
	if m == nil {
		return
	}
	label := "false"
	if hasPaymentLink {
		label = "true"
	}
	m.ordersTotal.WithLabelValues(label).Inc()
}

func (m *CommerceMetrics) ObservePayment(outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(outcome).Inc()
}

func (m *CommerceMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}

func (m *CommerceMetrics) ObserveAbandoned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.abandonedTotal.Add(float64(n))
}

func (m *CommerceMetrics) ObserveHandoff() {
	if m == nil {
		return
	}
	m.handoffsTotal.Inc()
}
