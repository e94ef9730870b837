package transport

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"go.uber.org/zap"
)

const (
	RequestIDKey = "requestid"

	allowOrigins = "*"
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type"

	bodyLimit    = 1 << 20
	readTimeout  = 15 * time.Second
	writeTimeout = 60 * time.Second
)

// NewApp builds the fiber app with the gateway's middleware chain. metrics may be nil.
func NewApp(logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               observability.ServiceName,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: RequestIDKey,
	}))
	app.Use(CorrelationID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: allowMethods,
		AllowHeaders: allowHeaders,
	}))
	app.Use(metrics.HTTPMiddleware())

	return app
}

// CorrelationID copies the request id into the user context so services log it.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, _ := c.Locals(RequestIDKey).(string)
		if id = strings.TrimSpace(id); id != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// Preflight answers any OPTIONS request that the cors middleware let through.
func Preflight() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, allowOrigins)
		c.Set(fiber.HeaderAccessControlAllowMethods, allowMethods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, allowHeaders)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
