package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/webpush-gateway/internal/domain"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"go.uber.org/zap"
)

const maxBatchSize = 1000

// Dispatcher pushes one plaintext to many subscriptions and reports one result each.
type Dispatcher interface {
	SendAll(ctx context.Context, subs []domain.Subscription, plaintext []byte) []domain.Result
}

type DeliveryRequest struct {
	Subscriptions []domain.Subscription
	Message       domain.Payload
	// ExcludeDeviceID skips the sender's own device.
	ExcludeDeviceID string
}

// DeliveryService turns a delivery request into one push per distinct, well-formed
// subscription and folds the outcomes into a summary. It keeps no state between calls.
type DeliveryService struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewDeliveryService accepts a nil dispatcher; the service then reports ErrNotConfigured.
func NewDeliveryService(dispatcher Dispatcher, logger *zap.Logger) (*DeliveryService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func (s *DeliveryService) Configured() bool {
	return s != nil && s.dispatcher != nil
}

func (s *DeliveryService) Deliver(ctx context.Context, req DeliveryRequest) (*domain.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.Configured() {
		return nil, domain.ErrNotConfigured
	}

	if err := req.Message.Validate(); err != nil {
		return nil, err
	}
	if len(req.Subscriptions) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxBatchSize)
	}

	plaintext, err := req.Message.Marshal()
	if err != nil {
		return nil, err
	}

	logger := observability.WithContextLogger(s.logger, ctx)

	targets, dropped := selectTargets(req.Subscriptions, req.ExcludeDeviceID)
	if dropped > 0 {
		logger.Debug("skipped subscriptions", zap.Int("skipped", dropped))
	}

	summary := domain.Summarize(s.dispatcher.SendAll(ctx, targets, plaintext))

	logger.Info("push batch delivered",
		zap.Int("requested", len(req.Subscriptions)),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("expired", len(summary.ExpiredEndpoints)),
	)

	return &summary, nil
}

// selectTargets drops malformed entries, the excluded device and repeated endpoints,
// keeping the first occurrence of each endpoint.
func selectTargets(subs []domain.Subscription, excludeDeviceID string) ([]domain.Subscription, int) {
	excludeDeviceID = strings.TrimSpace(excludeDeviceID)
	seen := make(map[string]struct{}, len(subs))
	targets := make([]domain.Subscription, 0, len(subs))

	for _, sub := range subs {
		if sub.Validate() != nil {
			continue
		}
		if excludeDeviceID != "" && sub.DeviceID == excludeDeviceID {
			continue
		}

		sub.Endpoint = strings.TrimSpace(sub.Endpoint)
		if _, dup := seen[sub.Endpoint]; dup {
			continue
		}
		seen[sub.Endpoint] = struct{}{}
		targets = append(targets, sub)
	}

	return targets, len(subs) - len(targets)
}
