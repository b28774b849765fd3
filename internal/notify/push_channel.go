package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

// FCM rejects multicast batches above this size.
const multicastBatchLimit = 500

// MulticastSender abstracts the FCM client for testing.
type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// PushChannelDeps bundles collaborators for the push channel.
type PushChannelDeps struct {
	Messaging MulticastSender
	Devices   repositories.DeviceTokenRepository
	Clock     func() time.Time
	Logger    *zap.Logger
}

// PushChannel fans an order event out to every active device token. Tokens the
// provider reports as unregistered are deactivated so later sends skip them.
type PushChannel struct {
	messaging MulticastSender
	devices   repositories.DeviceTokenRepository
	clock     func() time.Time
	logger    *zap.Logger
}

// NewPushChannel constructs the push channel.
func NewPushChannel(deps PushChannelDeps) (*PushChannel, error) {
	if deps.Messaging == nil {
		return nil, errors.New("push channel: messaging client is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("push channel: device token repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PushChannel{
		messaging: deps.Messaging,
		devices:   deps.Devices,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Name identifies the channel in logs and failure reports.
func (c *PushChannel) Name() string { return "push" }

// Deliver sends the event to active admin tokens in multicast batches.
// Customer tokens never receive order lifecycle pushes.
func (c *PushChannel) Deliver(ctx context.Context, event domain.OrderEvent) error {
	if c == nil || c.messaging == nil {
		return errors.New("push channel: not initialised")
	}

	devices, err := c.devices.ListActive(ctx, domain.DeviceRoleAdmin)
	if err != nil {
		return fmt.Errorf("push channel: list tokens: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		tokens = append(tokens, device.Token)
	}

	var (
		sent  int
		stale []string
	)
	for start := 0; start < len(tokens); start += multicastBatchLimit {
		end := start + multicastBatchLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := c.messaging.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: eventTitle(event),
				Body:  eventBody(event),
			},
			Data: map[string]string{
				"eventId":     event.ID,
				"eventType":   string(event.Type),
				"orderId":     event.OrderID,
				"orderNumber": event.OrderNumber,
				"status":      string(event.NewStatus),
			},
		})
		if err != nil {
			return fmt.Errorf("push channel: multicast send: %w", err)
		}

		sent += resp.SuccessCount
		for i, result := range resp.Responses {
			if result.Error == nil {
				continue
			}
			if messaging.IsUnregistered(result.Error) {
				stale = append(stale, batch[i])
				continue
			}
			c.logger.Warn("push delivery failed",
				zap.String("eventId", event.ID),
				zap.Error(result.Error),
			)
		}
	}

	if len(stale) > 0 {
		if err := c.devices.Deactivate(ctx, stale, c.clock()); err != nil {
			c.logger.Warn("stale token deactivation failed",
				zap.Int("tokens", len(stale)),
				zap.Error(err),
			)
		} else {
			c.logger.Info("deactivated stale device tokens",
				zap.Int("tokens", len(stale)),
			)
		}
	}

	if sent == 0 && len(tokens) > 0 {
		return fmt.Errorf("push channel: no deliveries succeeded for event %s", event.ID)
	}
	return nil
}
