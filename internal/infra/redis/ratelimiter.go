package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/webpush-gateway/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	windowSeconds            = 1
	minWait                  = 5 * time.Millisecond

	windowKeyFormat  = "webpush:ratelimit:%s:%d"
	backoffKeyFormat = "webpush:backoff:%s"
)

// throttleScript returns 1 when the push is allowed, 0 when the current window is full,
// and -n while the service is paused for n more milliseconds.
var throttleScript = goredis.NewScript(`
local pause = redis.call("PTTL", KEYS[2])
if pause > 0 then
  return -pause
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

// backoffScript only ever extends a pause.
var backoffScript = goredis.NewScript(`
local current = redis.call("PTTL", KEYS[1])
if current < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
  return 1
end
return 0
`)

var (
	_ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)
	_ ratelimit.Backoff     = (*RedisRateLimiter)(nil)
)

// RedisRateLimiter is a fixed one-second window throttle shared by every gateway instance,
// keyed by push service host. A push service that answered Retry-After is paused for all
// instances until the pause expires.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

type verdict struct {
	allowed bool
	retryIn time.Duration
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Wait blocks until the service has budget or ctx ends. It sleeps until the next window
// or until a pause expires, whichever the store reports.
func (r *RedisRateLimiter) Wait(ctx context.Context, service string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		v, err := r.check(ctx, service)
		if err != nil {
			return err
		}
		if v.allowed {
			return nil
		}

		if err := r.sleep(ctx, v.retryIn); err != nil {
			return err
		}
	}
}

// Backoff pauses the service for d, capped at ratelimit.MaxBackoff. A shorter pause never
// replaces a longer one.
func (r *RedisRateLimiter) Backoff(ctx context.Context, service string, d time.Duration) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("rate limiter is not initialized")
	}

	normalized, err := normalizeService(service)
	if err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	if d > ratelimit.MaxBackoff {
		d = ratelimit.MaxBackoff
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf(backoffKeyFormat, normalized)
	if err := backoffScript.Run(ctx, r.client, []string{key}, d.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to record backoff: %w", err)
	}
	return nil
}

func (r *RedisRateLimiter) check(ctx context.Context, service string) (verdict, error) {
	if r == nil || r.client == nil {
		return verdict{}, fmt.Errorf("rate limiter is not initialized")
	}

	normalized, err := normalizeService(service)
	if err != nil {
		return verdict{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now().UTC()
	keys := []string{
		fmt.Sprintf(windowKeyFormat, normalized, now.Unix()),
		fmt.Sprintf(backoffKeyFormat, normalized),
	}

	result, err := throttleScript.Run(ctx, r.client, keys, r.limitPerSec, windowSeconds).Int64()
	if err != nil {
		return verdict{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	switch {
	case result == 1:
		return verdict{allowed: true}, nil
	case result < 0:
		return verdict{retryIn: atLeast(time.Duration(-result) * time.Millisecond)}, nil
	default:
		untilNextWindow := time.Second - time.Duration(now.Nanosecond())
		return verdict{retryIn: atLeast(untilNextWindow)}, nil
	}
}

func normalizeService(service string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(service))
	if normalized == "" {
		return "", fmt.Errorf("push service is required")
	}
	return normalized, nil
}

func atLeast(d time.Duration) time.Duration {
	if d < minWait {
		return minWait
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
