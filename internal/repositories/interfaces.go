package repositories

import (
	"context"
	"time"

	domain "github.com/oakmart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Stocks() StockRepository
	Counters() CounterRepository
	Notifications() NotificationRepository
	DeviceTokens() DeviceTokenRepository
	OrderEvents() OrderEventRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockMovement directs the ledger action applied alongside an order mutation.
type StockMovement string

const (
	// StockMovementNone leaves the ledger untouched.
	StockMovementNone StockMovement = "none"
	// StockMovementReserve decrements counts for every line, all-or-nothing.
	StockMovementReserve StockMovement = "reserve"
	// StockMovementRelease restores counts for every line.
	StockMovementRelease StockMovement = "release"
)

// OrderMutation reports what a transition callback decided for the order it
// was handed. Persist=false means nothing is written (idempotent re-entry);
// Event, when set, is created in the same transaction as the order and any
// stock writes.
type OrderMutation struct {
	Persist  bool
	Movement StockMovement
	Event    *domain.OrderEvent
}

// OrderTransitionResult returns the post-transaction order and touched stock projections.
type OrderTransitionResult struct {
	Order   domain.Order
	Stocks  map[string]domain.ProductStock
	Applied bool
}

// OrderRepository persists order documents with transactional lifecycle updates.
//
// Transition runs a single serialized transaction: it loads the order, hands a
// copy to apply, and — when the mutation asks for it — reads every stock
// document for the order's items, validates and adjusts them, then writes the
// order, the stock documents and the outbox event together. A shortfall on any
// line aborts the whole transaction with an InventoryError listing every
// offending SKU.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order, event *domain.OrderEvent) error
	Transition(ctx context.Context, orderID string, now time.Time, apply func(order *domain.Order) (OrderMutation, error)) (OrderTransitionResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings for users and admins.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination domain.Pagination
}

// StockRepository manages the inventory projection with batch all-or-nothing semantics.
type StockRepository interface {
	Get(ctx context.Context, sku string) (domain.ProductStock, error)
	Set(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error)
	Reserve(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error)
	Release(ctx context.Context, lines []domain.StockLine, now time.Time) (map[string]domain.ProductStock, error)
	ListLowStock(ctx context.Context, query StockLowQuery) (domain.CursorPage[domain.ProductStock], error)
}

// StockLowQuery controls pagination and threshold filtering for low stock listings.
type StockLowQuery struct {
	Threshold  int
	Pagination domain.Pagination
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// NotificationRepository persists the admin panel notification feed.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	List(ctx context.Context, filter NotificationListFilter) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, notificationID string, readAt time.Time) (domain.Notification, error)
}

// NotificationListFilter narrows the notification feed.
type NotificationListFilter struct {
	TargetUser string
	UnreadOnly bool
	Types      []string
	Pagination domain.Pagination
}

// DeviceTokenRepository registers push destinations and tracks their liveness.
type DeviceTokenRepository interface {
	Upsert(ctx context.Context, token domain.DeviceToken) (domain.DeviceToken, error)
	Delete(ctx context.Context, userID string, token string) error
	// ListActive returns deliverable tokens; a non-empty role restricts the
	// result to tokens registered with that role.
	ListActive(ctx context.Context, role domain.DeviceRole) ([]domain.DeviceToken, error)
	Deactivate(ctx context.Context, tokens []string, now time.Time) error
}

// OrderEventRepository drains and settles the outbox. Events are inserted by
// OrderRepository inside its transactions, never directly.
type OrderEventRepository interface {
	ListPending(ctx context.Context, limit int) ([]domain.OrderEvent, error)
	MarkDispatched(ctx context.Context, eventID string, now time.Time) error
	MarkFailed(ctx context.Context, eventID string, reason string, now time.Time) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
