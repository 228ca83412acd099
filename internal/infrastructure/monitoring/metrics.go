// Package monitoring exposes Prometheus metrics for the extraction cascade,
// the tab registry and the HTTP bridge.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentimentiq/backend/internal/extraction"
)

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Detection metrics
	ExtractionRuns *prometheus.CounterVec
	SlotWrites     *prometheus.CounterVec
	Tabs           prometheus.Gauge
}

// NewMetrics creates the collectors. Each call gets its own registry so
// tests can build as many as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentimentiq_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentimentiq_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ExtractionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentimentiq_extraction_runs_total",
				Help: "Extraction runs by the strategy that produced the result",
			},
			[]string{"strategy"},
		),
		SlotWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentimentiq_slot_writes_total",
				Help: "currentProduct slot writes by outcome",
			},
			[]string{"outcome"},
		),
		Tabs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentimentiq_registry_tabs",
				Help: "Tabs with a recorded detection",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveExtraction counts one extraction run. It is passed to
// extraction.WithObserver.
func (m *Metrics) ObserveExtraction(s extraction.Strategy) {
	m.ExtractionRuns.WithLabelValues(string(s)).Inc()
}

// SlotWritten counts a slot write.
func (m *Metrics) SlotWritten(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SlotWrites.WithLabelValues(outcome).Inc()
}

// TabsTracked sets the registry size gauge.
func (m *Metrics) TabsTracked(n int) {
	m.Tabs.Set(float64(n))
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
