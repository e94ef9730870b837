package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"github.com/kursadbilgin/webpush-gateway/internal/transport"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Delivery  DeliveryService
	PublicKey string
	Redis     *redis.Client
	Metrics   *observability.Metrics
}

func RegisterRoutes(app fiber.Router, deps Dependencies) error {
	RegisterHealthRoutes(app, deps.Redis, deps.PublicKey != "")

	if err := RegisterPushRoutes(app, deps.Delivery, deps.PublicKey); err != nil {
		return err
	}

	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString(observability.ServiceName)
	})
	app.Options("/*", transport.Preflight())

	return nil
}
