// Package metrics exposes engine outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records per-item, per-batch and side-effect outcomes. Labels
// are bounded by the kind, operation and outcome enums.
type Collector struct {
	registry *prometheus.Registry

	items       *prometheus.CounterVec
	batches     *prometheus.HistogramVec
	sideEffects *prometheus.CounterVec
	requests    *prometheus.CounterVec
}

// New creates a collector on its own registry, including the Go and
// process collectors
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geosync_items_total",
			Help: "Records processed by the engine by kind, operation and outcome",
		}, []string{"kind", "operation", "outcome"}),
		batches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geosync_batch_duration_seconds",
			Help:    "Duration of batch upserts",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind", "mode"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geosync_side_effect_failures_total",
			Help: "Failed audit, notification and index writes",
		}, []string{"kind", "effect"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geosync_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
	c.registry.MustRegister(
		c.items, c.batches, c.sideEffects, c.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveItem counts a single record outcome
func (c *Collector) ObserveItem(kind models.Kind, operation, outcome string) {
	c.items.WithLabelValues(string(kind), operation, outcome).Inc()
}

// ObserveBatch records the duration of a batch
func (c *Collector) ObserveBatch(kind models.Kind, mode string, took time.Duration) {
	c.batches.WithLabelValues(string(kind), mode).Observe(took.Seconds())
}

// ObserveSideEffectFailure counts a failed audit, notify or mirror write
func (c *Collector) ObserveSideEffectFailure(kind models.Kind, effect string) {
	c.sideEffects.WithLabelValues(string(kind), effect).Inc()
}

// ObserveRequest counts a served HTTP request
func (c *Collector) ObserveRequest(method, route, status string) {
	c.requests.WithLabelValues(method, route, status).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
