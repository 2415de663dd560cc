// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	WebhooksReceived *prometheus.CounterVec
	WebhooksSkipped  *prometheus.CounterVec
	WebhooksRejected *prometheus.CounterVec
	WebhooksFailed   *prometheus.CounterVec
	EntriesStored    *prometheus.CounterVec
	Hydrations       *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelog_webhooks_received_total",
			Help: "Webhook deliveries received, by source and event type.",
		}, []string{"source", "event_type"}),
		WebhooksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelog_webhooks_skipped_total",
			Help: "Deliveries skipped as duplicates.",
		}, []string{"source", "event_type"}),
		WebhooksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelog_webhooks_rejected_total",
			Help: "Deliveries rejected by signature or auth verification.",
		}, []string{"source"}),
		WebhooksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelog_webhooks_failed_total",
			Help: "Deliveries that failed processing.",
		}, []string{"source", "event_type"}),
		EntriesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelog_entries_stored_total",
			Help: "Entries appended to the daily store.",
		}, []string{"source", "category"}),
		Hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelog_hydrations_total",
			Help: "Hydrate-on-demand fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifelog_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
	}
	registry.MustRegister(
		m.WebhooksReceived, m.WebhooksSkipped, m.WebhooksRejected,
		m.WebhooksFailed, m.EntriesStored, m.Hydrations, m.RequestDuration,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency labeled by route pattern.
func (m *Metrics) Middleware(pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.RequestDuration.WithLabelValues(pattern, r.Method, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
