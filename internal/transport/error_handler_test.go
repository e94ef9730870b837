package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
		wantLevel  zapcore.Level
	}{
		{
			name:       "fiber error keeps its code",
			err:        fiber.NewError(fiber.StatusBadRequest, "validation error: message.title is required"),
			wantStatus: fiber.StatusBadRequest,
			wantBody:   `{"error":"validation error: message.title is required"}`,
			wantLevel:  zapcore.DebugLevel,
		},
		{
			name:       "wrapped fiber error",
			err:        fmt.Errorf("outer: %w", fiber.NewError(fiber.StatusInternalServerError, "VAPID not configured")),
			wantStatus: fiber.StatusInternalServerError,
			wantBody:   `{"error":"outer: VAPID not configured"}`,
			wantLevel:  zapcore.ErrorLevel,
		},
		{
			name:       "plain error is a server error",
			err:        errors.New("boom"),
			wantStatus: fiber.StatusInternalServerError,
			wantBody:   `{"error":"boom"}`,
			wantLevel:  zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, recorded := observer.New(zapcore.DebugLevel)
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
			app.Get("/fail", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if string(body) != tt.wantBody {
				t.Fatalf("body = %s, want %s", string(body), tt.wantBody)
			}

			entries := recorded.All()
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Fatalf("level = %s, want %s", entries[0].Level, tt.wantLevel)
			}
		})
	}
}

func TestErrorHandlerNilLogger(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	app.Get("/fail", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestNewAppAssignsRequestID(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop(), nil)

	var correlationID string
	app.Get("/ping", func(c *fiber.Ctx) error {
		correlationID, _ = observability.CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()

	header := resp.Header.Get(fiber.HeaderXRequestID)
	if header == "" {
		t.Fatal("X-Request-ID header missing")
	}
	if correlationID != header {
		t.Fatalf("correlation id = %q, want %q", correlationID, header)
	}
}

func TestNewAppRecoversPanics(t *testing.T) {
	t.Parallel()

	app := NewApp(zap.NewNop(), nil)
	app.Get("/panic", func(c *fiber.Ctx) error { panic("handler exploded") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Options("/*", Preflight())

	resp, err := app.Test(httptest.NewRequest(http.MethodOptions, "/anything", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowMethods); got != "GET, POST, OPTIONS" {
		t.Fatalf("allow-methods = %q", got)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowHeaders); got != "Content-Type" {
		t.Fatalf("allow-headers = %q", got)
	}
}
