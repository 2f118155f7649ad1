// Package metrics holds the Prometheus collectors for the notification path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry      *prometheus.Registry
	notifications *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	channelAuth   *prometheus.CounterVec
	reminders     prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetbot",
			Name:      "notifications_total",
			Help:      "Realtime notifications by broker event and final outcome.",
		}, []string{"event", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetbot",
			Name:      "broker_trigger_attempts_total",
			Help:      "Individual broker trigger calls, including retries.",
		}, []string{"event"}),
		channelAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetbot",
			Name:      "channel_authorizations_total",
			Help:      "Private channel authorization decisions.",
		}, []string{"result"}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "budgetbot",
			Name:      "bill_reminders_total",
			Help:      "Bill reminders processed by the cron endpoint.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.notifications,
		m.attempts,
		m.channelAuth,
		m.reminders,
	)
	return m
}

func (m *Metrics) Notification(event, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) TriggerAttempt(event string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(event).Inc()
}

func (m *Metrics) ChannelAuth(result string) {
	if m == nil {
		return
	}
	m.channelAuth.WithLabelValues(result).Inc()
}

func (m *Metrics) BillReminder() {
	if m == nil {
		return
	}
	m.reminders.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
