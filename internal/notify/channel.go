package notify

import (
	"context"
	"fmt"

	domain "github.com/oakmart/api/internal/domain"
)

// Channel delivers an order event to one destination. Implementations must be
// safe for concurrent use; a failure in one channel never blocks the others.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event domain.OrderEvent) error
}

// eventTitle renders the short human-readable headline for an event.
func eventTitle(event domain.OrderEvent) string {
	switch event.Type {
	case domain.OrderEventPlaced:
		return fmt.Sprintf("New order %s", event.OrderNumber)
	case domain.OrderEventCancelled:
		return fmt.Sprintf("Order %s cancelled", event.OrderNumber)
	case domain.OrderEventPaid:
		return fmt.Sprintf("Order %s paid", event.OrderNumber)
	default:
		return fmt.Sprintf("Order %s updated", event.OrderNumber)
	}
}

// eventBody renders the longer description used in notification payloads.
func eventBody(event domain.OrderEvent) string {
	switch event.Type {
	case domain.OrderEventPlaced:
		return fmt.Sprintf("Order %s has been placed and awaits confirmation.", event.OrderNumber)
	case domain.OrderEventCancelled:
		if reason, ok := event.Snapshot["reason"].(string); ok && reason != "" {
			return fmt.Sprintf("Order %s was cancelled: %s", event.OrderNumber, reason)
		}
		return fmt.Sprintf("Order %s was cancelled.", event.OrderNumber)
	case domain.OrderEventPaid:
		return fmt.Sprintf("Payment for order %s has been verified.", event.OrderNumber)
	default:
		return fmt.Sprintf("Order %s moved from %s to %s.", event.OrderNumber, event.PreviousStatus, event.NewStatus)
	}
}
