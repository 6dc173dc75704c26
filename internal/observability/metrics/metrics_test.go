package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestCommerceMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)

	m.ObserveInbound("processed")
	m.ObserveInbound("processed")
	m.ObserveInbound("duplicate")
	m.ObserveAgentTurn("rules", "timeout")
	m.ObserveOrderCreated(false)
	m.ObservePayment("paid")
	m.ObserveAbandoned(3)
	m.ObserveAbandoned(0)
	m.ObserveHandoff()
	m.ObserveLLMLatency("ok", 0.7)
	m.ObserveWebhookLatency("whatsapp", 0.01)

	if got := counterValue(t, reg, "commerce_messaging_inbound_total", map[string]string{"status": "processed"}); got != 2 {
		t.Fatalf("expected 2 processed, got %v", got)
	}
	if got := counterValue(t, reg, "commerce_agent_turns_total", map[string]string{"source": "rules", "reason": "timeout"}); got != 1 {
		t.Fatalf("expected 1 rules turn, got %v", got)
	}
	if got := counterValue(t, reg, "commerce_orders_created_total", map[string]string{"payment_link": "false"}); got != 1 {
		t.Fatalf("expected 1 order without link, got %v", got)
	}
	if got := counterValue(t, reg, "commerce_conversations_abandoned_total", nil); got != 3 {
		t.Fatalf("expected 3 abandoned, got %v", got)
	}
}

func TestCommerceMetricsNilSafe(t *testing.T) {
	var m *CommerceMetrics
	m.ObserveInbound("processed")
	m.ObserveOutbound("sent")
	m.ObserveAgentTurn("llm", "")
	m.ObserveLLMLatency("ok", 1)
	m.ObserveOrderCreated(true)
	m.ObservePayment("paid")
	m.ObserveWebhookLatency("paystack", 0.1)
	m.ObserveAbandoned(1)
	m.ObserveHandoff()
}
