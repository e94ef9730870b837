package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/webpush-gateway/internal/domain"
	"github.com/kursadbilgin/webpush-gateway/internal/service"
)

type DeliveryService interface {
	Configured() bool
	Deliver(ctx context.Context, req service.DeliveryRequest) (*domain.Summary, error)
}

type PushHandler struct {
	service   DeliveryService
	publicKey string
}

// NewPushHandler takes the base64url VAPID public key, or "" when the process runs without keys.
func NewPushHandler(service DeliveryService, publicKey string) (*PushHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	return &PushHandler{service: service, publicKey: strings.TrimSpace(publicKey)}, nil
}

func RegisterPushRoutes(router fiber.Router, service DeliveryService, publicKey string) error {
	h, err := NewPushHandler(service, publicKey)
	if err != nil {
		return err
	}

	router.Get("/vapid-public-key", h.GetPublicKey)
	router.Post("/trigger-push", h.TriggerPush)

	return nil
}

type triggerPushRequest struct {
	Subscriptions   []json.RawMessage `json:"subscriptions"`
	Message         *messageRequest   `json:"message"`
	ExcludeDeviceID string            `json:"excludeDeviceId"`
}

type subscriptionRequest struct {
	Endpoint  string          `json:"endpoint"`
	Keys      *domain.Keys    `json:"keys"`
	DeviceID  string          `json:"deviceId"`
	CreatedAt json.RawMessage `json:"createdAt"`
}

type messageRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

type triggerPushResponse struct {
	Success          bool     `json:"success"`
	Sent             int      `json:"sent"`
	Failed           int      `json:"failed"`
	ExpiredEndpoints []string `json:"expiredEndpoints"`
}

type publicKeyResponse struct {
	Key string `json:"key"`
}

func (h *PushHandler) GetPublicKey(c *fiber.Ctx) error {
	if h.publicKey == "" {
		return toHTTPError(domain.ErrNotConfigured)
	}
	return c.Status(fiber.StatusOK).JSON(publicKeyResponse{Key: h.publicKey})
}

func (h *PushHandler) TriggerPush(c *fiber.Ctx) error {
	var req triggerPushRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !h.service.Configured() {
		return toHTTPError(domain.ErrNotConfigured)
	}
	if len(req.Subscriptions) == 0 {
		return toHTTPError(fmt.Errorf("%w: subscriptions is required", domain.ErrValidation))
	}
	if req.Message == nil {
		return toHTTPError(fmt.Errorf("%w: message is required", domain.ErrValidation))
	}

	summary, err := h.service.Deliver(c.UserContext(), service.DeliveryRequest{
		Subscriptions: decodeSubscriptions(req.Subscriptions),
		Message: domain.Payload{
			Title: strings.TrimSpace(req.Message.Title),
			Body:  req.Message.Body,
			Tag:   strings.TrimSpace(req.Message.Tag),
			URL:   strings.TrimSpace(req.Message.URL),
		},
		ExcludeDeviceID: req.ExcludeDeviceID,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(triggerPushResponse{
		Success:          true,
		Sent:             summary.Sent,
		Failed:           summary.Failed,
		ExpiredEndpoints: summary.ExpiredEndpoints,
	})
}

// decodeSubscriptions decodes each entry on its own so one malformed entry does not
// reject the batch. Entries that are not objects or lack keys are dropped here; the
// service drops the ones that decode but fail validation.
func decodeSubscriptions(raw []json.RawMessage) []domain.Subscription {
	subs := make([]domain.Subscription, 0, len(raw))
	for _, item := range raw {
		var req subscriptionRequest
		if err := json.Unmarshal(item, &req); err != nil || req.Keys == nil {
			continue
		}

		subs = append(subs, domain.Subscription{
			Endpoint:  strings.TrimSpace(req.Endpoint),
			Keys:      *req.Keys,
			DeviceID:  strings.TrimSpace(req.DeviceID),
			CreatedAt: parseCreatedAt(req.CreatedAt),
		})
	}
	return subs
}

// parseCreatedAt accepts epoch milliseconds or an RFC 3339 string. The timestamp is
// informational, so anything else yields the zero time.
func parseCreatedAt(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		return time.Time{}
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotConfigured):
		return fiber.NewError(fiber.StatusInternalServerError, domain.ErrNotConfigured.Error())
	default:
		return err
	}
}
