// Package metrics exposes Prometheus collectors for the health-check
// pipeline and the webhook ingestion endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so repeated construction (tests, scoped
// service instances) never trips duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	healthChecks       *prometheus.CounterVec
	responseTime       prometheus.Histogram
	webhooksReceived   *prometheus.CounterVec
	webhooksDuplicated prometheus.Counter
}

// New creates the collector set and registers it, alongside the
// standard Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		healthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clarion",
				Subsystem: "healthcheck",
				Name:      "checks_total",
				Help:      "Number of completed health-check cycles by status.",
			}, []string{"status"},
		),
		responseTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "clarion",
				Subsystem: "healthcheck",
				Name:      "response_time_seconds",
				Help:      "Webhook round-trip time for successful health checks.",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		webhooksReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clarion",
				Subsystem: "webhook",
				Name:      "events_received_total",
				Help:      "Number of inbound webhook events by type.",
			}, []string{"event_type"},
		),
		webhooksDuplicated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "clarion",
				Subsystem: "webhook",
				Name:      "events_duplicated_total",
				Help:      "Number of inbound webhook redeliveries rejected by dedupe.",
			},
		),
	}

	registry.MustRegister(
		m.healthChecks,
		m.responseTime,
		m.webhooksReceived,
		m.webhooksDuplicated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCheck records the outcome of one health-check cycle.
func (m *Metrics) ObserveCheck(status string) {
	m.healthChecks.WithLabelValues(status).Inc()
}

// ObserveResponseTime records the round-trip time of a successful check.
func (m *Metrics) ObserveResponseTime(seconds float64) {
	m.responseTime.Observe(seconds)
}

// ObserveWebhook records an accepted inbound webhook event.
func (m *Metrics) ObserveWebhook(eventType string) {
	m.webhooksReceived.WithLabelValues(eventType).Inc()
}

// ObserveDuplicateWebhook records a redelivery rejected by dedupe.
func (m *Metrics) ObserveDuplicateWebhook() {
	m.webhooksDuplicated.Inc()
}

// Registry exposes the underlying registry for custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
