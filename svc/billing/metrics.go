package billing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds billing counters. A nil *Metrics records nothing.
type Metrics struct {
	events        *prometheus.CounterVec
	processing    prometheus.Histogram
	notifications *prometheus.CounterVec
	usage         *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
}

// NewMetrics creates and registers the billing collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viewportly",
			Subsystem: "billing",
			Name:      "events_total",
			Help:      "Webhook events processed, by canonical type and outcome.",
		}, []string{"type", "outcome"}),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "viewportly",
			Subsystem: "billing",
			Name:      "event_processing_seconds",
			Help:      "Time spent processing a webhook event.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viewportly",
			Subsystem: "billing",
			Name:      "notifications_total",
			Help:      "Notification intents dispatched, by kind and result.",
		}, []string{"kind", "result"}),
		usage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viewportly",
			Subsystem: "billing",
			Name:      "usage_decisions_total",
			Help:      "Usage reservations, by decision.",
		}, []string{"decision"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viewportly",
			Subsystem: "billing",
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests, by verification result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.processing, m.notifications, m.usage, m.webhooks)
	}
	return m
}

func (m *Metrics) eventProcessed(t EventType, o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	typ := string(t)
	if !t.Known() {
		typ = "other"
	}
	m.events.WithLabelValues(typ, string(o)).Inc()
	m.processing.Observe(d.Seconds())
}

func (m *Metrics) notification(kind IntentKind, ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) usageDecision(decision string) {
	if m == nil {
		return
	}
	m.usage.WithLabelValues(decision).Inc()
}

func (m *Metrics) webhook(result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(result).Inc()
}
