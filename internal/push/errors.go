package push

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/webpush-gateway/internal/ratelimit"
)

// Failure reasons, also used as metric labels.
const (
	ReasonExpired     = "expired"
	ReasonRateLimited = "rate_limited"
	ReasonRejected    = "rejected"
	ReasonTransport   = "transport"
	ReasonCrypto      = "crypto"
	ReasonAuth        = "auth"
)

// DeliveryError classifies a failed push. Expired means the subscription is permanently gone
// and should be pruned by whoever stores it.
type DeliveryError struct {
	StatusCode int
	Message    string
	Reason     string
	Expired    bool
	Transient  bool
	// RetryAfter is the pause the push service asked for with 429 or 503.
	RetryAfter time.Duration
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "push delivery error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a later retry by the caller could succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsExpired reports whether the push service declared the subscription gone.
func IsExpired(err error) bool {
	var deliveryErr *DeliveryError
	return errors.As(err, &deliveryErr) && deliveryErr.Expired
}

func statusError(statusCode int, body string, retryAfter time.Duration) *DeliveryError {
	err := &DeliveryError{
		StatusCode: statusCode,
		Message:    statusMessage(statusCode, body),
		Reason:     ReasonRejected,
	}

	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		err.Reason = ReasonExpired
		err.Expired = true
	case statusCode == http.StatusTooManyRequests:
		err.Reason = ReasonRateLimited
		err.Transient = true
		err.RetryAfter = retryAfter
	case statusCode >= http.StatusInternalServerError && statusCode <= 599:
		err.Transient = true
		if statusCode == http.StatusServiceUnavailable {
			err.RetryAfter = retryAfter
		}
	}

	return err
}

func statusMessage(statusCode int, body string) string {
	base := fmt.Sprintf("push service returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

// parseRetryAfter reads a Retry-After header given either as delay seconds or an HTTP date,
// capped at ratelimit.MaxBackoff.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		if seconds > int64(ratelimit.MaxBackoff/time.Second) {
			return ratelimit.MaxBackoff
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, ratelimit.MaxBackoff)
		}
	}
	return 0
}
