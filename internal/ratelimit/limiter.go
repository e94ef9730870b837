package ratelimit

import (
	"context"
	"time"
)

// RateLimiter throttles outbound pushes per push service host. Wait blocks until the
// service has budget or ctx ends.
type RateLimiter interface {
	Wait(ctx context.Context, service string) error
}

// MaxBackoff caps a single Retry-After pause; callers are bounded by their own timeout anyway.
const MaxBackoff = time.Minute

// Backoff is implemented by limiters that can pause a push service after it answers
// 429 or 503 with Retry-After.
type Backoff interface {
	Backoff(ctx context.Context, service string, d time.Duration) error
}
