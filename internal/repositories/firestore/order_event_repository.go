package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
)

const orderEventsCollection = "orderEvents"

type orderEventDocument struct {
	Type           string         `firestore:"type"`
	OrderID        string         `firestore:"orderId"`
	OrderNumber    string         `firestore:"orderNumber"`
	UserID         string         `firestore:"userId"`
	PreviousStatus string         `firestore:"previousStatus,omitempty"`
	NewStatus      string         `firestore:"newStatus,omitempty"`
	Snapshot       map[string]any `firestore:"snapshot,omitempty"`
	Status         string         `firestore:"status"`
	Attempts       int            `firestore:"attempts"`
	LastError      *string        `firestore:"lastError,omitempty"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	DispatchedAt   *time.Time     `firestore:"dispatchedAt,omitempty"`
}

func newOrderEventDocument(event domain.OrderEvent) orderEventDocument {
	return orderEventDocument{
		Type:           string(event.Type),
		OrderID:        strings.TrimSpace(event.OrderID),
		OrderNumber:    strings.TrimSpace(event.OrderNumber),
		UserID:         strings.TrimSpace(event.UserID),
		PreviousStatus: string(event.PreviousStatus),
		NewStatus:      string(event.NewStatus),
		Snapshot:       event.Snapshot,
		Status:         string(event.Status),
		Attempts:       event.Attempts,
		LastError:      event.LastError,
		CreatedAt:      event.CreatedAt.UTC(),
		DispatchedAt:   event.DispatchedAt,
	}
}

func (d orderEventDocument) toDomain(id string) domain.OrderEvent {
	return domain.OrderEvent{
		ID:             id,
		Type:           domain.OrderEventType(d.Type),
		OrderID:        d.OrderID,
		OrderNumber:    d.OrderNumber,
		UserID:         d.UserID,
		PreviousStatus: domain.OrderStatus(d.PreviousStatus),
		NewStatus:      domain.OrderStatus(d.NewStatus),
		Snapshot:       d.Snapshot,
		Status:         domain.OrderEventStatus(d.Status),
		Attempts:       d.Attempts,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
		DispatchedAt:   d.DispatchedAt,
	}
}

// OrderEventRepository drains the outbox written by OrderRepository
// transactions and records dispatch outcomes.
type OrderEventRepository struct {
	provider *pfirestore.Provider
	events   *pfirestore.BaseRepository[orderEventDocument]
}

// NewOrderEventRepository constructs a Firestore-backed outbox repository.
func NewOrderEventRepository(provider *pfirestore.Provider) (*OrderEventRepository, error) {
	if provider == nil {
		return nil, errors.New("order event repository requires firestore provider")
	}
	events := pfirestore.NewBaseRepository[orderEventDocument](provider, orderEventsCollection, nil, nil)
	return &OrderEventRepository{provider: provider, events: events}, nil
}

// ListPending returns undelivered events oldest first.
func (r *OrderEventRepository) ListPending(ctx context.Context, limit int) ([]domain.OrderEvent, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order event repository not initialised")
	}
	if limit <= 0 {
		limit = 25
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orderEvents.listPending", err)
	}

	iter := client.Collection(orderEventsCollection).Query.
		Where("status", "in", []string{string(domain.OrderEventPending), string(domain.OrderEventFailed)}).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var events []domain.OrderEvent
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orderEvents.listPending", err)
		}
		var doc orderEventDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order event %s: %w", snap.Ref.ID, err)
		}
		events = append(events, doc.toDomain(snap.Ref.ID))
	}
	return events, nil
}

// MarkDispatched settles an event after every channel was attempted.
func (r *OrderEventRepository) MarkDispatched(ctx context.Context, eventID string, now time.Time) error {
	return r.settle(ctx, eventID, domain.OrderEventDispatched, "", now)
}

// MarkFailed records a dispatch failure and bumps the attempt count so the
// event is picked up again by a later drain.
func (r *OrderEventRepository) MarkFailed(ctx context.Context, eventID string, reason string, now time.Time) error {
	return r.settle(ctx, eventID, domain.OrderEventFailed, reason, now)
}

func (r *OrderEventRepository) settle(ctx context.Context, eventID string, status domain.OrderEventStatus, reason string, now time.Time) error {
	if r == nil || r.events == nil {
		return errors.New("order event repository not initialised")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return errors.New("order event settle: event id is required")
	}

	ref, err := r.events.DocumentRef(ctx, eventID)
	if err != nil {
		return err
	}
	ts := now.UTC()
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "attempts", Value: firestore.Increment(1)},
	}
	if status == domain.OrderEventDispatched {
		updates = append(updates, firestore.Update{Path: "dispatchedAt", Value: ts})
	}
	if reason != "" {
		updates = append(updates, firestore.Update{Path: "lastError", Value: reason})
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return pfirestore.WrapError("orderEvents.settle", err)
	}
	return nil
}
