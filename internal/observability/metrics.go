package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	recordsIngestedTotal  *prometheus.CounterVec
	recordsForwardedTotal *prometheus.CounterVec
	recordsFailedTotal    *prometheus.CounterVec
	forwardDuration       *prometheus.HistogramVec
	workerInflight        *prometheus.GaugeVec
	retryScheduledTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "schema_relay",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "schema_relay",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		recordsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "schema_relay",
				Name:      "records_ingested_total",
				Help:      "Total number of ingest attempts by schema and result.",
			},
			[]string{"schema", "result"},
		),
		recordsForwardedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "schema_relay",
				Name:      "records_forwarded_total",
				Help:      "Total number of records delivered to their destination.",
			},
			[]string{"schema"},
		),
		recordsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "schema_relay",
				Name:      "records_failed_total",
				Help:      "Total number of records that ended in a failed state.",
			},
			[]string{"schema", "reason"},
		),
		forwardDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "schema_relay",
				Name:      "forward_duration_seconds",
				Help:      "Destination call duration in seconds grouped by schema.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"schema"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "schema_relay",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight forward operations grouped by schema.",
			},
			[]string{"schema"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "schema_relay",
				Name:      "retry_scheduled_total",
				Help:      "Total number of records scheduled for a forward retry.",
			},
			[]string{"schema"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.recordsIngestedTotal,
		m.recordsForwardedTotal,
		m.recordsFailedTotal,
		m.forwardDuration,
		m.workerInflight,
		m.retryScheduledTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncRecordIngested(schema string, result string) {
	if m == nil {
		return
	}
	resultLabel := strings.TrimSpace(strings.ToLower(result))
	if resultLabel == "" {
		resultLabel = "unknown"
	}
	m.recordsIngestedTotal.WithLabelValues(normalizeSchema(schema), resultLabel).Inc()
}

func (m *Metrics) IncRecordForwarded(schema string) {
	if m == nil {
		return
	}
	m.recordsForwardedTotal.WithLabelValues(normalizeSchema(schema)).Inc()
}

func (m *Metrics) IncRecordFailed(schema string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.recordsFailedTotal.WithLabelValues(normalizeSchema(schema), reasonLabel).Inc()
}

func (m *Metrics) ObserveForwardDuration(schema string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.forwardDuration.WithLabelValues(normalizeSchema(schema)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(schema string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeSchema(schema)).Inc()
}

func (m *Metrics) DecWorkerInFlight(schema string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeSchema(schema)).Dec()
}

func (m *Metrics) IncRetryScheduled(schema string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeSchema(schema)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeSchema(schema string) string {
	normalized := strings.TrimSpace(strings.ToLower(schema))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
