package vapid

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL keeps tokens well inside the 24h ceiling push services enforce.
	DefaultTokenTTL = 12 * time.Hour
	// MaxTokenTTL is the longest lifetime push services accept.
	MaxTokenTTL = 24 * time.Hour

	headerScheme = "vapid"
)

var ErrInvalidEndpoint = errors.New("invalid push endpoint")

// Credentials are the header values that authenticate one request to a push service.
type Credentials struct {
	// Authorization is the full "vapid t=<jwt>, k=<key>" header value; k= carries the
	// public key that older schemes sent in Crypto-Key.
	Authorization string
	Token         string
	Audience      string
}

// Authenticator signs ES256 tokens with the process-wide key pair.
type Authenticator struct {
	keys    *KeyPair
	subject string
	ttl     time.Duration
	now     func() time.Time
}

func NewAuthenticator(keys *KeyPair, subject string, ttl time.Duration) (*Authenticator, error) {
	if keys == nil {
		return nil, fmt.Errorf("key pair is required")
	}

	subject = NormalizeSubject(subject)
	if subject == "" {
		return nil, fmt.Errorf("vapid subject is required")
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if ttl > MaxTokenTTL {
		ttl = MaxTokenTTL
	}

	return &Authenticator{
		keys:    keys,
		subject: subject,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// NormalizeSubject turns a bare contact address into a mailto: URI.
func NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ""
	}
	if strings.HasPrefix(subject, "mailto:") || strings.HasPrefix(subject, "https://") {
		return subject
	}
	return "mailto:" + subject
}

// Audience reduces a push endpoint to its origin, scheme://host.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no origin", ErrInvalidEndpoint, endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

// PublicKey returns the base64url public key sent in the k= parameter.
func (a *Authenticator) PublicKey() string {
	return a.keys.PublicKeyString()
}

// Credentials builds a fresh signed token for the endpoint's push service.
func (a *Authenticator) Credentials(endpoint string) (*Credentials, error) {
	audience, err := Audience(endpoint)
	if err != nil {
		return nil, err
	}

	expiresAt := a.now().Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": audience,
		"exp": expiresAt.Unix(),
		"sub": a.subject,
	})

	// jwt's ES256 emits the raw 64-byte r||s form that the vapid scheme requires.
	signed, err := token.SignedString(a.keys.signer())
	if err != nil {
		return nil, fmt.Errorf("failed to sign vapid token: %w", err)
	}

	publicKey := a.keys.PublicKeyString()

	return &Credentials{
		Authorization: fmt.Sprintf("%s t=%s, k=%s", headerScheme, signed, publicKey),
		Token:         signed,
		Audience:      audience,
	}, nil
}
