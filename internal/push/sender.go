// Package push delivers encrypted Web Push messages to push service endpoints and turns
// every outcome into a domain.Result.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/webpush-gateway/internal/base64url"
	"github.com/kursadbilgin/webpush-gateway/internal/domain"
	"github.com/kursadbilgin/webpush-gateway/internal/encryption"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"github.com/kursadbilgin/webpush-gateway/internal/ratelimit"
	"github.com/kursadbilgin/webpush-gateway/internal/vapid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 10 * time.Second
	// DefaultTTL is how long the push service queues a message for an offline device.
	DefaultTTL = 86400
	// UrgencyHigh keeps mobile OSes from deferring delivery in battery saver mode.
	UrgencyHigh = "high"
	// DefaultTopic lets the push service collapse pending messages into one.
	DefaultTopic = "solo-chat"

	contentEncoding  = "aes128gcm"
	maxLoggedBody    = 512
	maxLoggedAddress = 50

	backoffRecordTimeout = time.Second
)

// Authenticator produces VAPID credentials for an endpoint.
type Authenticator interface {
	Credentials(endpoint string) (*vapid.Credentials, error)
}

type Options struct {
	Timeout time.Duration
	TTL     int
	Urgency string
	Topic   string
	// MaxConcurrency bounds in-flight pushes per SendAll call; zero means unbounded.
	MaxConcurrency int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if strings.TrimSpace(o.Urgency) == "" {
		o.Urgency = UrgencyHigh
	}
	if strings.TrimSpace(o.Topic) == "" {
		o.Topic = DefaultTopic
	}
	return o
}

// Sender pushes to push services. It holds no per-message state and is safe for
// concurrent use.
type Sender struct {
	client      *resty.Client
	auth        Authenticator
	encryptor   *encryption.Encryptor
	rateLimiter ratelimit.RateLimiter
	metrics     *observability.Metrics
	logger      *zap.Logger
	opts        Options
	now         func() time.Time
}

func NewSender(auth Authenticator, opts Options, logger *zap.Logger) (*Sender, error) {
	opts = opts.withDefaults()

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(0)

	return NewSenderWithClient(auth, client, opts, logger)
}

func NewSenderWithClient(auth Authenticator, client *resty.Client, opts Options, logger *zap.Logger) (*Sender, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = opts.withDefaults()
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(opts.Timeout)
	}
	client.SetRetryCount(0)

	return &Sender{
		client:    client,
		auth:      auth,
		encryptor: encryption.NewEncryptor(),
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}, nil
}

// SetRateLimiter enables the per push service outbound throttle.
func (s *Sender) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if s == nil {
		return
	}
	s.rateLimiter = limiter
}

func (s *Sender) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SendAll pushes plaintext to every subscription concurrently and waits for all of them.
// Results are index-aligned with subs. One failure never affects another subscription.
func (s *Sender) SendAll(ctx context.Context, subs []domain.Subscription, plaintext []byte) []domain.Result {
	results := make([]domain.Result, len(subs))

	var g errgroup.Group
	if s.opts.MaxConcurrency > 0 {
		g.SetLimit(s.opts.MaxConcurrency)
	}

	for i, sub := range subs {
		g.Go(func() error {
			results[i] = s.Send(ctx, sub, plaintext)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Send pushes plaintext to one subscription and classifies the outcome.
func (s *Sender) Send(ctx context.Context, sub domain.Subscription, plaintext []byte) domain.Result {
	if ctx == nil {
		ctx = context.Background()
	}

	service := sub.Host()
	if s.metrics != nil {
		s.metrics.IncPushInFlight(service)
		defer s.metrics.DecPushInFlight(service)
	}

	start := s.now()
	statusCode, err := s.deliver(ctx, sub, plaintext)
	if s.metrics != nil {
		s.metrics.ObservePushSendDuration(service, s.now().Sub(start))
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("endpoint", TruncateEndpoint(sub.Endpoint)),
		zap.String("service", service),
	)

	if err == nil {
		if s.metrics != nil {
			s.metrics.IncPushSent(service)
		}
		logger.Debug("push delivered", zap.Int("status", statusCode))
		return domain.Result{
			Endpoint:   sub.Endpoint,
			Success:    true,
			StatusCode: statusCode,
		}
	}

	result := domain.Result{
		Endpoint:     sub.Endpoint,
		StatusCode:   statusCode,
		Error:        err.Error(),
		ShouldRemove: IsExpired(err),
	}

	reason := ReasonTransport
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Reason != "" {
		reason = deliveryErr.Reason
	}
	if s.metrics != nil {
		s.metrics.IncPushFailed(service, reason)
	}

	logger.Warn("push failed",
		zap.Int("status", statusCode),
		zap.String("reason", reason),
		zap.Bool("expired", result.ShouldRemove),
		zap.Bool("transient", IsTransient(err)),
		zap.Error(err),
	)

	return result
}

func (s *Sender) deliver(ctx context.Context, sub domain.Subscription, plaintext []byte) (int, error) {
	creds, err := s.auth.Credentials(sub.Endpoint)
	if err != nil {
		return 0, &DeliveryError{Message: "failed to build vapid credentials", Reason: ReasonAuth, Cause: err}
	}

	body, err := s.encrypt(sub, plaintext)
	if err != nil {
		return 0, &DeliveryError{Message: "failed to encrypt payload", Reason: ReasonCrypto, Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.waitForBudget(ctx, sub.Host()); err != nil {
		return 0, err
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", creds.Authorization).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("Content-Encoding", contentEncoding).
		SetHeader("Content-Length", strconv.Itoa(len(body))).
		SetHeader("TTL", strconv.Itoa(s.opts.TTL)).
		SetHeader("Urgency", s.opts.Urgency).
		SetHeader("Topic", s.opts.Topic).
		SetBody(body).
		Post(sub.Endpoint)
	if err != nil {
		return 0, &DeliveryError{
			Message:   "push request failed",
			Reason:    ReasonTransport,
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return 0, &DeliveryError{
			Message:   "push service returned empty response",
			Reason:    ReasonTransport,
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return statusCode, nil
	}

	retryAfter := parseRetryAfter(response.Header().Get("Retry-After"), s.now())
	deliveryErr := statusError(statusCode, truncate(strings.TrimSpace(response.String()), maxLoggedBody), retryAfter)
	s.backoff(sub.Host(), deliveryErr.RetryAfter)

	return statusCode, deliveryErr
}

// waitForBudget fails the push only when the throttle ran out of time. An unreachable
// throttle store must not stop delivery, so other errors are logged and the push proceeds.
func (s *Sender) waitForBudget(ctx context.Context, service string) error {
	if s.rateLimiter == nil {
		return nil
	}

	err := s.rateLimiter.Wait(ctx, service)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return &DeliveryError{
			Message:   "outbound rate limit wait failed",
			Reason:    ReasonRateLimited,
			Transient: true,
			Cause:     err,
		}
	default:
		observability.WithContextLogger(s.logger, ctx).Warn("rate limiter unavailable, sending unthrottled",
			zap.String("service", service),
			zap.Error(err),
		)
		return nil
	}
}

// backoff shares a Retry-After pause with every instance when the limiter supports it.
func (s *Sender) backoff(service string, d time.Duration) {
	if d <= 0 {
		return
	}
	b, ok := s.rateLimiter.(ratelimit.Backoff)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backoffRecordTimeout)
	defer cancel()

	if err := b.Backoff(ctx, service, d); err != nil {
		s.logger.Warn("failed to record push service backoff",
			zap.String("service", service),
			zap.Duration("retry_after", d),
			zap.Error(err),
		)
	}
}

func (s *Sender) encrypt(sub domain.Subscription, plaintext []byte) ([]byte, error) {
	receiverKey, err := base64url.Decode(sub.Keys.P256dh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", encryption.ErrInvalidReceiverKey, err)
	}
	authSecret, err := base64url.Decode(sub.Keys.Auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", encryption.ErrInvalidAuthSecret, err)
	}

	msg, err := s.encryptor.Encrypt(plaintext, receiverKey, authSecret)
	if err != nil {
		return nil, err
	}
	return msg.Body(), nil
}

// TruncateEndpoint shortens an endpoint for logs; the tail is a device-specific token.
func TruncateEndpoint(endpoint string) string {
	return truncate(endpoint, maxLoggedAddress)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
