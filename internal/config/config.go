package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/webpush-gateway/internal/observability"
	"github.com/kursadbilgin/webpush-gateway/internal/vapid"
)

const DotEnvFile = ".env"

// Topic values must fit the push service's 32 character base64url constraint.
var topicPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

var validUrgencies = map[string]struct{}{
	"very-low": {},
	"low":      {},
	"normal":   {},
	"high":     {},
}

type Config struct {
	VAPIDPublicKey       string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey      string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject         string `env:"VAPID_SUBJECT,default=mailto:push@solo.chat"`
	VAPIDTokenTTLMinutes int    `env:"VAPID_TOKEN_TTL_MINUTES,default=720"`
	PushTimeoutSeconds   int    `env:"PUSH_TIMEOUT_SECONDS,default=10"`
	PushTTLSeconds       int    `env:"PUSH_TTL_SECONDS,default=86400"`
	PushUrgency          string `env:"PUSH_URGENCY,default=high"`
	PushTopic            string `env:"PUSH_TOPIC,default=solo-chat"`
	PushMaxConcurrency   int    `env:"PUSH_MAX_CONCURRENCY,default=0"`
	RedisURL             string `env:"REDIS_URL"`
	RateLimitPerSec      int    `env:"RATE_LIMIT_PER_SEC,default=0"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
	LogFormat            string `env:"LOG_FORMAT,default=json"`
}

// Load reads .env from the working directory, if present, then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	return LoadFrom(DotEnvFile)
}

func LoadFrom(dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", dotEnvPath, err)
		}
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.PushTimeoutSeconds <= 0 {
		return fmt.Errorf("PUSH_TIMEOUT_SECONDS must be positive")
	}
	if c.PushTTLSeconds <= 0 {
		return fmt.Errorf("PUSH_TTL_SECONDS must be positive")
	}
	if c.VAPIDTokenTTLMinutes <= 0 || time.Duration(c.VAPIDTokenTTLMinutes)*time.Minute > vapid.MaxTokenTTL {
		return fmt.Errorf("VAPID_TOKEN_TTL_MINUTES must be between 1 and %d", int(vapid.MaxTokenTTL/time.Minute))
	}
	if _, ok := validUrgencies[c.PushUrgency]; !ok {
		return fmt.Errorf("PUSH_URGENCY %q is not one of very-low, low, normal, high", c.PushUrgency)
	}
	if !topicPattern.MatchString(c.PushTopic) {
		return fmt.Errorf("PUSH_TOPIC %q must be 1-32 base64url characters", c.PushTopic)
	}
	if c.PushMaxConcurrency < 0 {
		return fmt.Errorf("PUSH_MAX_CONCURRENCY must not be negative")
	}
	if c.RateLimitPerSec < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SEC must not be negative")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	if _, err := observability.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if f := strings.ToLower(c.LogFormat); f != observability.FormatJSON && f != observability.FormatConsole {
		return fmt.Errorf("LOG_FORMAT %q is not one of json, console", c.LogFormat)
	}
	return nil
}

// VAPIDKeys parses the configured key pair. It returns nil, nil when neither key is set,
// which leaves the gateway running unconfigured. A half-configured or mismatched pair is
// an error.
func (c *Config) VAPIDKeys() (*vapid.KeyPair, error) {
	public := strings.TrimSpace(c.VAPIDPublicKey)
	private := strings.TrimSpace(c.VAPIDPrivateKey)

	switch {
	case public == "" && private == "":
		return nil, nil
	case public == "":
		return nil, fmt.Errorf("VAPID_PUBLIC_KEY is required when VAPID_PRIVATE_KEY is set")
	case private == "":
		return nil, fmt.Errorf("VAPID_PRIVATE_KEY is required when VAPID_PUBLIC_KEY is set")
	}

	keys, err := vapid.ParseKeyPair(public, private)
	if err != nil {
		return nil, fmt.Errorf("invalid VAPID keys: %w", err)
	}
	return keys, nil
}

func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.PushTimeoutSeconds) * time.Second
}

func (c *Config) VAPIDTokenTTL() time.Duration {
	return time.Duration(c.VAPIDTokenTTLMinutes) * time.Minute
}

// RateLimitEnabled reports whether outbound pushes are throttled through Redis.
func (c *Config) RateLimitEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != "" && c.RateLimitPerSec > 0
}
