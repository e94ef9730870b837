package domain

import "errors"

var (
	// ErrValidation marks malformed input; the gateway answers 400.
	ErrValidation = errors.New("validation error")
	// ErrNotConfigured means the process has no VAPID key pair; the gateway answers 500.
	ErrNotConfigured = errors.New("VAPID not configured")
)
