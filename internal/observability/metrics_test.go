package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPushCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncPushSent("FCM.googleapis.com")
	metrics.IncPushFailed("fcm.googleapis.com", "Expired")
	metrics.IncPushFailed("fcm.googleapis.com", "")
	metrics.ObservePushSendDuration("fcm.googleapis.com", 120*time.Millisecond)
	metrics.IncPushInFlight("fcm.googleapis.com")
	metrics.DecPushInFlight("fcm.googleapis.com")

	if got := testutil.ToFloat64(metrics.pushesSentTotal.WithLabelValues("fcm.googleapis.com")); got != 1 {
		t.Fatalf("pushes_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.pushesFailedTotal.WithLabelValues("fcm.googleapis.com", "expired")); got != 1 {
		t.Fatalf("pushes_failed_total{expired} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.pushesFailedTotal.WithLabelValues("fcm.googleapis.com", "unknown")); got != 1 {
		t.Fatalf("pushes_failed_total{unknown} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.pushesInflight.WithLabelValues("fcm.googleapis.com")); got != 0 {
		t.Fatalf("pushes_inflight = %v, want 0", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncPushSent("x")
	metrics.IncPushFailed("x", "y")
	metrics.ObservePushSendDuration("x", time.Second)
	metrics.IncPushInFlight("x")
	metrics.DecPushInFlight("x")

	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
