package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kursadbilgin/webpush-gateway/internal/config"
	"github.com/kursadbilgin/webpush-gateway/internal/handler"
	infraredis "github.com/kursadbilgin/webpush-gateway/internal/infra/redis"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"github.com/kursadbilgin/webpush-gateway/internal/push"
	"github.com/kursadbilgin/webpush-gateway/internal/service"
	"github.com/kursadbilgin/webpush-gateway/internal/transport"
	"github.com/kursadbilgin/webpush-gateway/internal/vapid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("webpush-gateway stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := cfg.VAPIDKeys()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
	}

	var (
		dispatcher service.Dispatcher
		publicKey  string
	)
	if keys != nil {
		sender, err := newSender(cfg, keys, rdb, metrics, logger)
		if err != nil {
			return err
		}
		dispatcher = sender
		publicKey = keys.PublicKeyString()
	} else {
		logger.Warn("VAPID keys not configured; push endpoints will answer 500")
	}

	delivery, err := service.NewDeliveryService(dispatcher, logger)
	if err != nil {
		return err
	}

	app := transport.NewApp(logger, metrics)
	if err := handler.RegisterRoutes(app, handler.Dependencies{
		Delivery:  delivery,
		PublicKey: publicKey,
		Redis:     rdb,
		Metrics:   metrics,
	}); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("webpush-gateway api started",
		zap.Int("port", cfg.APIPort),
		zap.Bool("vapid_configured", keys != nil),
		zap.Bool("rate_limited", cfg.RateLimitEnabled()),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newSender(
	cfg *config.Config,
	keys *vapid.KeyPair,
	rdb *redis.Client,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*push.Sender, error) {
	auth, err := vapid.NewAuthenticator(keys, cfg.VAPIDSubject, cfg.VAPIDTokenTTL())
	if err != nil {
		return nil, err
	}

	sender, err := push.NewSender(auth, push.Options{
		Timeout:        cfg.PushTimeout(),
		TTL:            cfg.PushTTLSeconds,
		Urgency:        cfg.PushUrgency,
		Topic:          cfg.PushTopic,
		MaxConcurrency: cfg.PushMaxConcurrency,
	}, logger)
	if err != nil {
		return nil, err
	}
	sender.SetMetrics(metrics)

	if cfg.RateLimitEnabled() && rdb != nil {
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return nil, err
		}
		sender.SetRateLimiter(limiter)
	}

	return sender, nil
}
