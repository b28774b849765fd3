package services

import (
	"context"
	"time"

	domain "github.com/oakmart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderTotals        = domain.OrderTotals
	OrderStatus        = domain.OrderStatus
	OrderEvent         = domain.OrderEvent
	PaymentDetails     = domain.PaymentDetails
	ShippingDetails    = domain.ShippingDetails
	StockLine          = domain.StockLine
	ProductStock       = domain.ProductStock
	Notification       = domain.Notification
	NotificationType   = domain.NotificationType
	DeviceToken        = domain.DeviceToken
	DevicePlatform     = domain.DevicePlatform
	DeviceRole         = domain.DeviceRole
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService encapsulates order lifecycle flows: placement, status
// transitions with stock reconciliation, cancellation, and payment
// verification.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// PlaceOrderCommand carries a validated basket for order creation.
type PlaceOrderCommand struct {
	UserID   string
	Currency string
	Items    []PlaceOrderItem
	Shipping ShippingDetails
	Discount int64
	Delivery int64
	Metadata map[string]any
}

// PlaceOrderItem is a single requested line.
type PlaceOrderItem struct {
	ProductRef string
	SKU        string
	Name       string
	Quantity   int
	UnitPrice  int64
	FinalPrice int64
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination Pagination
}

// OrderStatusTransitionCommand moves an order through its lifecycle.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Reason       string
	Metadata     map[string]any
}

// CancelOrderCommand cancels a non-terminal order, restoring reserved stock.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

// VerifyPaymentCommand checks the gateway signature and marks the order paid.
type VerifyPaymentCommand struct {
	OrderID   string
	PaymentID string
	Signature string
	ActorID   string
}

// InventoryService centralizes stock configuration and batch ledger workflows.
type InventoryService interface {
	GetStock(ctx context.Context, sku string) (ProductStock, error)
	ConfigureStock(ctx context.Context, cmd ConfigureStockCommand) (ProductStock, error)
	ReserveStocks(ctx context.Context, cmd StockBatchCommand) (map[string]ProductStock, error)
	ReleaseStocks(ctx context.Context, cmd StockBatchCommand) (map[string]ProductStock, error)
	ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[ProductStock], error)
}

// ConfigureStockCommand sets the absolute stock level for a SKU.
type ConfigureStockCommand struct {
	SKU          string
	ProductRef   string
	CountInStock int
	ActorID      string
}

// StockBatchCommand holds the lines for an all-or-nothing ledger operation.
type StockBatchCommand struct {
	Lines   []StockLine
	Reason  string
	ActorID string
}

// LowStockFilter controls threshold and paging for low stock listings.
type LowStockFilter struct {
	Threshold  int
	Pagination Pagination
}

// CounterService provides durable sequence generation for business identifiers.
type CounterService interface {
	Next(ctx context.Context, scope string, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context, now time.Time) (string, error)
	Configure(ctx context.Context, scope string, name string, cfg CounterSettings) error
}

// CounterGenerationOptions customises formatting of generated values.
type CounterGenerationOptions struct {
	Step      int64
	Prefix    string
	PadLength int
	Formatter func(seq int64) string
}

// CounterSettings mirrors repository-level counter configuration.
type CounterSettings struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterValue couples the raw sequence with its formatted representation.
type CounterValue struct {
	Sequence  int64
	Formatted string
}

// NotificationService exposes the admin feed and device token registry.
type NotificationService interface {
	List(ctx context.Context, filter NotificationFeedFilter) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error)
	RegisterDevice(ctx context.Context, cmd RegisterDeviceCommand) (DeviceToken, error)
	UnregisterDevice(ctx context.Context, cmd UnregisterDeviceCommand) error
}

// NotificationFeedFilter narrows the admin feed.
type NotificationFeedFilter struct {
	TargetUser string
	UnreadOnly bool
	Types      []string
	Pagination Pagination
}

// MarkNotificationReadCommand flags a feed entry as read.
type MarkNotificationReadCommand struct {
	NotificationID string
	ActorID        string
}

// RegisterDeviceCommand registers a push token for the acting user. Role is
// derived from the caller's verified claims, never from the request body;
// order pushes are delivered to admin-role tokens only.
type RegisterDeviceCommand struct {
	UserID   string
	Token    string
	Platform DevicePlatform
	Role     DeviceRole
}

// UnregisterDeviceCommand removes a push token owned by the acting user.
type UnregisterDeviceCommand struct {
	UserID string
	Token  string
}

// SystemService surfaces operational health data for monitoring endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
