package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics records checkout and reconciliation activity.
type BillingMetrics struct {
	sessions        *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
}

// NewBillingMetrics registers the billing counters on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout sessions created, by gateway and outcome.",
	}, []string{"provider", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook deliveries received, by gateway and outcome.",
	}, []string{"provider", "outcome"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliations_total",
		Help: "Reconciliation runs, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(sessions, webhooks, reconciliations)
	return &BillingMetrics{
		sessions:        sessions,
		webhooks:        webhooks,
		reconciliations: reconciliations,
	}
}

// IncSession counts one checkout session attempt.
func (b *BillingMetrics) IncSession(provider, outcome string) {
	if b == nil || b.sessions == nil {
		return
	}
	b.sessions.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncWebhook counts one webhook delivery.
func (b *BillingMetrics) IncWebhook(provider, outcome string) {
	if b == nil || b.webhooks == nil {
		return
	}
	b.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncReconciliation counts one reconciliation run.
func (b *BillingMetrics) IncReconciliation(outcome string) {
	if b == nil || b.reconciliations == nil {
		return
	}
	b.reconciliations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
