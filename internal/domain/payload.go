package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the notification content the service worker renders. It is serialized to JSON
// and encrypted per subscription.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: message.title is required", ErrValidation)
	}
	return nil
}

// Marshal returns the plaintext handed to the encryptor.
func (p Payload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return b, nil
}
