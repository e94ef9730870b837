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

// Metrics stores Prometheus collectors for the gateway and outbound pushes.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	pushesSentTotal     *prometheus.CounterVec
	pushesFailedTotal   *prometheus.CounterVec
	pushSendDuration    *prometheus.HistogramVec
	pushesInflight      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webpush_gateway",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webpush_gateway",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		pushesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webpush_gateway",
				Name:      "pushes_sent_total",
				Help:      "Total number of pushes accepted by a push service.",
			},
			[]string{"service"},
		),
		pushesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webpush_gateway",
				Name:      "pushes_failed_total",
				Help:      "Total number of failed pushes by push service and reason.",
			},
			[]string{"service", "reason"},
		),
		pushSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webpush_gateway",
				Name:      "push_send_duration_seconds",
				Help:      "Time to encrypt, sign and deliver one push, grouped by push service.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"service"},
		),
		pushesInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "webpush_gateway",
				Name:      "pushes_inflight",
				Help:      "Current number of in-flight pushes grouped by push service.",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.pushesSentTotal,
		m.pushesFailedTotal,
		m.pushSendDuration,
		m.pushesInflight,
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
		if m == nil {
			return c.Next()
		}

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

func (m *Metrics) IncPushSent(service string) {
	if m == nil {
		return
	}
	m.pushesSentTotal.WithLabelValues(normalizeService(service)).Inc()
}

func (m *Metrics) IncPushFailed(service string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.pushesFailedTotal.WithLabelValues(normalizeService(service), reasonLabel).Inc()
}

func (m *Metrics) ObservePushSendDuration(service string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.pushSendDuration.WithLabelValues(normalizeService(service)).Observe(seconds)
}

func (m *Metrics) IncPushInFlight(service string) {
	if m == nil {
		return
	}
	m.pushesInflight.WithLabelValues(normalizeService(service)).Inc()
}

func (m *Metrics) DecPushInFlight(service string) {
	if m == nil {
		return
	}
	m.pushesInflight.WithLabelValues(normalizeService(service)).Dec()
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

func normalizeService(service string) string {
	normalized := strings.ToLower(strings.TrimSpace(service))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
