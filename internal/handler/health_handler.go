package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	readinessTimeout = 2 * time.Second
	Version          = "1.0.0"
)

// RegisterHealthRoutes mounts the probes. rdb may be nil when no throttle store is configured.
func RegisterHealthRoutes(app fiber.Router, rdb *redis.Client, vapidConfigured bool) {
	app.Get("/health", HealthHandler())
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(rdb, vapidConfigured))
}

func HealthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"version": Version,
		})
	}
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(rdb *redis.Client, vapidConfigured bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		redisStatus := "disabled"
		var redisErr error
		if rdb != nil {
			redisErr = rdb.Ping(ctx).Err()
			redisStatus = "ok"
			if redisErr != nil {
				redisStatus = "down"
			}
		}

		vapidStatus := "ok"
		if !vapidConfigured {
			vapidStatus = "missing"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if redisErr != nil || !vapidConfigured {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"redis": redisStatus,
				"vapid": vapidStatus,
			},
		})
	}
}
