package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

const notificationIDPrefix = "ntf_"

// AdminChannelDeps bundles collaborators for the admin feed channel.
type AdminChannelDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
	IDGenerator   func() string
}

// AdminChannel records order events as entries in the admin panel feed.
type AdminChannel struct {
	notifications repositories.NotificationRepository
	clock         func() time.Time
	newID         func() string
}

// NewAdminChannel constructs the admin feed channel.
func NewAdminChannel(deps AdminChannelDeps) (*AdminChannel, error) {
	if deps.Notifications == nil {
		return nil, errors.New("admin channel: notification repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &AdminChannel{
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// Name identifies the channel in logs and failure reports.
func (c *AdminChannel) Name() string { return "admin" }

// Deliver writes a feed entry for the event.
func (c *AdminChannel) Deliver(ctx context.Context, event domain.OrderEvent) error {
	if c == nil || c.notifications == nil {
		return errors.New("admin channel: not initialised")
	}

	notification := domain.Notification{
		ID:      notificationIDPrefix + strings.ToLower(c.newID()),
		Type:    domain.NotificationTypeOrder,
		Title:   eventTitle(event),
		Message: eventBody(event),
		Metadata: map[string]any{
			"eventId":     event.ID,
			"eventType":   string(event.Type),
			"orderId":     event.OrderID,
			"orderNumber": event.OrderNumber,
		},
		CreatedAt: c.clock(),
	}

	if err := c.notifications.Insert(ctx, notification); err != nil {
		return fmt.Errorf("admin channel: insert notification: %w", err)
	}
	return nil
}
