package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Keys holds the subscriber's base64url encoded p256dh point and auth secret, exactly as
// the browser's PushSubscription.toJSON() reports them.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a device registration issued by a browser push service. It is read-only
// for this service; identity is the endpoint.
type Subscription struct {
	Endpoint  string
	Keys      Keys
	DeviceID  string
	CreatedAt time.Time
}

func (s Subscription) Validate() error {
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrValidation)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: endpoint must be an absolute http(s) url", ErrValidation)
	}

	if strings.TrimSpace(s.Keys.P256dh) == "" {
		return fmt.Errorf("%w: keys.p256dh is required", ErrValidation)
	}
	if strings.TrimSpace(s.Keys.Auth) == "" {
		return fmt.Errorf("%w: keys.auth is required", ErrValidation)
	}

	return nil
}

// Host returns the push service host, used as a low-cardinality label.
func (s Subscription) Host() string {
	u, err := url.Parse(strings.TrimSpace(s.Endpoint))
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
