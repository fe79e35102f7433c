package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records webhook and refund processing activity.
type PaymentMetrics struct {
	webhookEvents    *prometheus.CounterVec
	refunds          *prometheus.CounterVec
	reconcileSeconds *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processor webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refund attempts by outcome.",
	}, []string{"outcome"})
	reconcileSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of webhook reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	reg.MustRegister(webhookEvents, refunds, reconcileSeconds)
	return &PaymentMetrics{
		webhookEvents:    webhookEvents,
		refunds:          refunds,
		reconcileSeconds: reconcileSeconds,
	}
}

// IncWebhookEvent increments the webhook counter for an event type/outcome pair.
func (p *PaymentMetrics) IncWebhookEvent(eventType, outcome string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncRefund increments the refund counter for the given outcome.
func (p *PaymentMetrics) IncRefund(outcome string) {
	if p == nil || p.refunds == nil {
		return
	}
	p.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveReconcile records how long a reconciliation pass took.
func (p *PaymentMetrics) ObserveReconcile(eventType string, duration time.Duration) {
	if p == nil || p.reconcileSeconds == nil {
		return
	}
	p.reconcileSeconds.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
