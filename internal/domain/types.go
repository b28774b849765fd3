package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPlaced indicates the order has been received and awaits confirmation.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusConfirmed indicates the shop accepted the order and stock is committed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusInProduction indicates the order is actively being prepared.
	OrderStatusInProduction OrderStatus = "in_production"
	// OrderStatusOutForDelivery indicates the order left the shop with a courier.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before delivery.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Order captures order headers returned to handlers/services.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Items           []OrderItem
	Totals          OrderTotals
	StockReconciled bool
	PaymentDetails  *PaymentDetails
	IsPaid          bool
	PaidAt          *time.Time
	Shipping        ShippingDetails
	IsDelivered     bool
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is an immutable purchased line captured at placement time.
type OrderItem struct {
	ProductRef string
	SKU        string
	Name       string
	Quantity   int
	UnitPrice  int64
	FinalPrice int64
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Delivery int64
	Total    int64
}

// PaymentDetails stores the gateway references attached to an order.
type PaymentDetails struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// ShippingDetails captures the delivery destination and requested slot.
type ShippingDetails struct {
	RecipientName string
	Phone         string
	Email         string
	AddressLine1  string
	AddressLine2  string
	City          string
	PostalCode    string
	DeliveryDate  *time.Time
	DeliverySlot  string
	Instructions  string
}

// StockLine pairs a SKU with a quantity for ledger operations.
type StockLine struct {
	SKU        string
	ProductRef string
	Quantity   int
}

// ProductStock is the inventory projection consulted and mutated by the ledger.
type ProductStock struct {
	SKU          string
	ProductRef   string
	CountInStock int
	UpdatedAt    time.Time
}

// NotificationType partitions the admin panel feed.
type NotificationType string

const (
	// NotificationTypeOrder marks notifications generated by order lifecycle events.
	NotificationTypeOrder NotificationType = "order"
	// NotificationTypeAdmin marks notifications addressed to the admin panel broadly.
	NotificationTypeAdmin NotificationType = "admin"
	// NotificationTypeSystem marks operational notifications (failures, stock alerts).
	NotificationTypeSystem NotificationType = "system"
)

// Notification is a persisted admin-panel feed entry.
type Notification struct {
	ID         string
	Type       NotificationType
	Title      string
	Message    string
	TargetUser string
	Read       bool
	Metadata   map[string]any
	CreatedAt  time.Time
}

// DevicePlatform identifies the push platform a token belongs to.
type DevicePlatform string

const (
	// DevicePlatformAndroid identifies FCM tokens issued to Android devices.
	DevicePlatformAndroid DevicePlatform = "android"
	// DevicePlatformIOS identifies FCM tokens issued to iOS devices.
	DevicePlatformIOS DevicePlatform = "ios"
	// DevicePlatformWeb identifies FCM tokens issued to web clients.
	DevicePlatformWeb DevicePlatform = "web"
)

// DeviceRole records the authorisation scope of the token owner at
// registration time. Order push notifications go to admin devices only.
type DeviceRole string

const (
	// DeviceRoleUser marks tokens owned by regular customers.
	DeviceRoleUser DeviceRole = "user"
	// DeviceRoleAdmin marks tokens owned by back-office staff.
	DeviceRoleAdmin DeviceRole = "admin"
)

// DeviceToken registers a push destination for a user.
type DeviceToken struct {
	Token     string
	UserID    string
	Platform  DevicePlatform
	Role      DeviceRole
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderEventType enumerates lifecycle events recorded in the outbox.
type OrderEventType string

const (
	// OrderEventPlaced is recorded when a new order is created.
	OrderEventPlaced OrderEventType = "order.placed"
	// OrderEventStatusChanged is recorded on every accepted status transition.
	OrderEventStatusChanged OrderEventType = "order.status_changed"
	// OrderEventCancelled is recorded when an order is cancelled.
	OrderEventCancelled OrderEventType = "order.cancelled"
	// OrderEventPaid is recorded when payment verification succeeds.
	OrderEventPaid OrderEventType = "order.paid"
)

// OrderEventStatus tracks outbox dispatch progress.
type OrderEventStatus string

const (
	// OrderEventPending indicates the event awaits dispatch.
	OrderEventPending OrderEventStatus = "pending"
	// OrderEventDispatched indicates every notification channel was attempted.
	OrderEventDispatched OrderEventStatus = "dispatched"
	// OrderEventFailed indicates dispatch errored and may be retried.
	OrderEventFailed OrderEventStatus = "failed"
)

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderEvent is an outbox record written atomically with the order mutation
// that produced it. Notification fanout consumes these after commit.
type OrderEvent struct {
	ID             string
	Type           OrderEventType
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus OrderStatus
	NewStatus      OrderStatus
	Snapshot       map[string]any
	Status         OrderEventStatus
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
	DispatchedAt   *time.Time
}
