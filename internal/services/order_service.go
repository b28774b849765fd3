package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/payments"
	"github.com/oakmart/api/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderEventIDPrefix = "evt_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates sequence exhaustion, duplicates, or contention that
	// survived the bounded transaction retries.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentFailed indicates the gateway rejected the intent request.
	ErrOrderPaymentFailed = errors.New("order: payment intent failed")
	// ErrOrderPaymentRejected indicates the payment signature did not verify.
	ErrOrderPaymentRejected = errors.New("order: payment verification rejected")
)

// orderStateTransitions defines the admissible lifecycle edges. Cancellation is
// reachable from every non-terminal status; delivered and cancelled have no
// outgoing edges. Fulfilment may skip confirmed (direct production start) and
// out_for_delivery (pickup orders).
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPlaced:         {domain.OrderStatusConfirmed, domain.OrderStatusInProduction, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:      {domain.OrderStatusInProduction, domain.OrderStatusCancelled},
	domain.OrderStatusInProduction:   {domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

// stockCommittedStatuses are the statuses whose entry requires reserved stock.
var stockCommittedStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusConfirmed:      true,
	domain.OrderStatusInProduction:   true,
	domain.OrderStatusOutForDelivery: true,
	domain.OrderStatusDelivered:      true,
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, next := range orderStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func knownOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPlaced, domain.OrderStatusConfirmed, domain.OrderStatusInProduction,
		domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentSignatureVerifier checks gateway callback signatures.
type PaymentSignatureVerifier interface {
	Verify(gatewayOrderID, paymentID, signature string) error
}

// paymentGateway abstracts payments.Gateway for easier testing.
type paymentGateway interface {
	CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Stocks      repositories.StockRepository
	Counters    CounterService
	Payments    paymentGateway
	Signatures  PaymentSignatureVerifier
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	stocks     repositories.StockRepository
	counters   CounterService
	payments   paymentGateway
	signatures PaymentSignatureVerifier
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Stocks == nil {
		return nil, errors.New("order service: stock repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment gateway is required")
	}
	if deps.Signatures == nil {
		return nil, errors.New("order service: signature verifier is required")
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

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		stocks:     deps.Stocks,
		counters:   deps.Counters,
		payments:   deps.Payments,
		signatures: deps.Signatures,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		return Order{}, fmt.Errorf("%w: currency is required", ErrOrderInvalidInput)
	}
	items, err := buildOrderItems(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	if cmd.Discount < 0 || cmd.Delivery < 0 {
		return Order{}, fmt.Errorf("%w: discount and delivery must be >= 0", ErrOrderInvalidInput)
	}

	totals := computeOrderTotals(items, cmd.Discount, cmd.Delivery)
	if totals.Total <= 0 {
		return Order{}, fmt.Errorf("%w: order total must be positive", ErrOrderInvalidInput)
	}

	if err := s.checkStockAvailability(ctx, items); err != nil {
		return Order{}, err
	}

	now := s.now()

	number, err := s.counters.NextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, s.mapCounterError(err)
	}

	orderID := orderIDPrefix + strings.ToLower(s.newID())

	intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
		OrderID:        orderID,
		OrderNumber:    number,
		Amount:         totals.Total,
		Currency:       currency,
		CustomerID:     userID,
		IdempotencyKey: orderID,
	})
	if err != nil {
		s.logger(ctx, "order.payment_intent.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentFailed, err)
	}

	order := domain.Order{
		ID:          orderID,
		OrderNumber: number,
		UserID:      userID,
		Status:      domain.OrderStatusPlaced,
		Currency:    currency,
		Items:       items,
		Totals:      totals,
		PaymentDetails: &domain.PaymentDetails{
			GatewayOrderID: intent.GatewayOrderID,
		},
		Shipping:  cmd.Shipping,
		Metadata:  cmd.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	event := s.newOrderEvent(domain.OrderEventPlaced, order, order.Status, now)
	if err := s.orders.Insert(ctx, order, &event); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.placed", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"userId":      order.UserID,
		"total":       order.Totals.Total,
	})
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, raw := range filter.Status {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status == "" {
			continue
		}
		if !knownOrderStatus(status) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		statuses = append(statuses, string(status))
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Status:     statuses,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.TargetStatus))))
	if !knownOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}
	return s.transition(ctx, transitionRequest{
		OrderID:  cmd.OrderID,
		Target:   target,
		ActorID:  cmd.ActorID,
		Reason:   cmd.Reason,
		Metadata: cmd.Metadata,
	})
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.transition(ctx, transitionRequest{
		OrderID: cmd.OrderID,
		Target:  domain.OrderStatusCancelled,
		ActorID: cmd.ActorID,
		Reason:  cmd.Reason,
	})
}

type transitionRequest struct {
	OrderID  string
	Target   domain.OrderStatus
	ActorID  string
	Reason   string
	Metadata map[string]any
}

// transition applies a lifecycle move inside a single repository transaction.
// Stock is reserved on first entry to a committed status and released on
// cancellation of a reconciled order; reaching the current status again is a
// no-op rather than an error.
func (s *orderService) transition(ctx context.Context, req transitionRequest) (Order, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	result, err := s.orders.Transition(ctx, orderID, now, func(order *domain.Order) (repositories.OrderMutation, error) {
		if order.Status == req.Target {
			return repositories.OrderMutation{}, nil
		}
		if !canTransition(order.Status, req.Target) {
			return repositories.OrderMutation{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, req.Target)
		}

		previous := order.Status
		movement := repositories.StockMovementNone
		eventType := domain.OrderEventStatusChanged

		switch {
		case req.Target == domain.OrderStatusCancelled:
			eventType = domain.OrderEventCancelled
			if order.StockReconciled {
				movement = repositories.StockMovementRelease
				order.StockReconciled = false
			}
			cancelledAt := now
			order.CancelledAt = &cancelledAt
			if reason := strings.TrimSpace(req.Reason); reason != "" {
				order.CancelReason = &reason
			}
		case stockCommittedStatuses[req.Target] && !order.StockReconciled:
			movement = repositories.StockMovementReserve
			order.StockReconciled = true
		}

		order.Status = req.Target
		if req.Target == domain.OrderStatusDelivered {
			deliveredAt := now
			order.IsDelivered = true
			order.DeliveredAt = &deliveredAt
		}

		event := s.newOrderEvent(eventType, *order, previous, now)
		if actor := strings.TrimSpace(req.ActorID); actor != "" {
			event.Snapshot["actorId"] = actor
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			event.Snapshot["reason"] = reason
		}
		for k, v := range req.Metadata {
			event.Snapshot[k] = v
		}

		return repositories.OrderMutation{
			Persist:  true,
			Movement: movement,
			Event:    &event,
		}, nil
	})
	if err != nil {
		return Order{}, s.mapTransitionError(err)
	}

	if !result.Applied {
		s.logger(ctx, "order.transition.noop", map[string]any{
			"orderId": orderID,
			"status":  string(req.Target),
		})
		return result.Order, nil
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": result.Order.ID,
		"status":  string(result.Order.Status),
		"actorId": strings.TrimSpace(req.ActorID),
	})
	return result.Order, nil
}

func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return Order{}, fmt.Errorf("%w: order id, payment id, and signature are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.PaymentDetails == nil || order.PaymentDetails.GatewayOrderID == "" {
		return Order{}, fmt.Errorf("%w: order has no payment intent", ErrOrderInvalidState)
	}

	if err := s.signatures.Verify(order.PaymentDetails.GatewayOrderID, paymentID, signature); err != nil {
		s.logger(ctx, "order.payment.rejected", map[string]any{
			"orderId":   orderID,
			"paymentId": paymentID,
		})
		return Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentRejected, err)
	}

	now := s.now()
	result, err := s.orders.Transition(ctx, orderID, now, func(order *domain.Order) (repositories.OrderMutation, error) {
		if order.IsPaid && order.PaymentDetails != nil && order.PaymentDetails.PaymentID == paymentID {
			return repositories.OrderMutation{}, nil
		}

		paidAt := now
		order.IsPaid = true
		order.PaidAt = &paidAt
		if order.PaymentDetails == nil {
			order.PaymentDetails = &domain.PaymentDetails{}
		}
		order.PaymentDetails.PaymentID = paymentID
		order.PaymentDetails.Signature = signature

		event := s.newOrderEvent(domain.OrderEventPaid, *order, order.Status, now)
		event.Snapshot["paymentId"] = paymentID
		if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
			event.Snapshot["actorId"] = actor
		}

		return repositories.OrderMutation{Persist: true, Event: &event}, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if result.Applied {
		s.logger(ctx, "order.paid", map[string]any{
			"orderId":   result.Order.ID,
			"paymentId": paymentID,
		})
	}
	return result.Order, nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) newOrderEvent(eventType domain.OrderEventType, order domain.Order, previous domain.OrderStatus, now time.Time) domain.OrderEvent {
	return domain.OrderEvent{
		ID:             orderEventIDPrefix + strings.ToLower(s.newID()),
		Type:           eventType,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: previous,
		NewStatus:      order.Status,
		Snapshot:       snapshotForOrder(order),
		Status:         domain.OrderEventPending,
		CreatedAt:      now,
	}
}

// snapshotForOrder captures the fields notification channels need without
// re-reading the order after commit.
func snapshotForOrder(order domain.Order) map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"sku":      item.SKU,
			"name":     item.Name,
			"quantity": item.Quantity,
		})
	}
	snapshot := map[string]any{
		"orderNumber": order.OrderNumber,
		"userId":      order.UserID,
		"currency":    order.Currency,
		"total":       order.Totals.Total,
		"itemCount":   len(order.Items),
		"items":       items,
	}
	if email := strings.TrimSpace(order.Shipping.Email); email != "" {
		snapshot["email"] = email
	}
	if name := strings.TrimSpace(order.Shipping.RecipientName); name != "" {
		snapshot["recipientName"] = name
	}
	if order.Shipping.DeliveryDate != nil {
		snapshot["deliveryDate"] = order.Shipping.DeliveryDate.UTC().Format(time.RFC3339)
	}
	if slot := strings.TrimSpace(order.Shipping.DeliverySlot); slot != "" {
		snapshot["deliverySlot"] = slot
	}
	return snapshot
}

// checkStockAvailability is the catalog-read-time soft check before an order
// number is minted. The authoritative all-or-nothing check runs inside the
// reservation transaction; transient read failures therefore log and pass
// rather than block placement.
func (s *orderService) checkStockAvailability(ctx context.Context, items []domain.OrderItem) error {
	var short []string
	for _, item := range items {
		stock, err := s.stocks.Get(ctx, item.SKU)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				short = append(short, item.SKU)
				continue
			}
			s.logger(ctx, "order.stock_check.skipped", map[string]any{
				"sku":   item.SKU,
				"error": err.Error(),
			})
			continue
		}
		if stock.CountInStock < item.Quantity {
			short = append(short, item.SKU)
		}
	}
	if len(short) > 0 {
		return &InsufficientStockError{SKUs: short}
	}
	return nil
}

// mapTransitionError folds repository failures from a transition into the
// service error taxonomy, preserving the full offending SKU list on shortfall.
func (s *orderService) mapTransitionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderInvalidState) {
		return err
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientStockError{SKUs: invErr.SKUs}
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryStockNotFound, invErr.Error())
		}
	}

	return s.mapRepositoryError(err)
}

func (s *orderService) mapCounterError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrCounterConflict), errors.Is(err, ErrCounterExhausted):
		return fmt.Errorf("%w: order number sequence: %v", ErrOrderConflict, err)
	case errors.Is(err, ErrCounterInvalidInput):
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	default:
		return err
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func buildOrderItems(items []PlaceOrderItem) ([]domain.OrderItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	result := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		sku := strings.TrimSpace(item.SKU)
		if sku == "" {
			return nil, fmt.Errorf("%w: item sku is required", ErrOrderInvalidInput)
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: item name is required for %s", ErrOrderInvalidInput, sku)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, sku)
		}
		if item.UnitPrice < 0 || item.FinalPrice < 0 {
			return nil, fmt.Errorf("%w: prices for %s must be >= 0", ErrOrderInvalidInput, sku)
		}
		result = append(result, domain.OrderItem{
			ProductRef: strings.TrimSpace(item.ProductRef),
			SKU:        sku,
			Name:       name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			FinalPrice: item.FinalPrice,
		})
	}
	return result, nil
}

func computeOrderTotals(items []domain.OrderItem, discount, delivery int64) domain.OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.FinalPrice * int64(item.Quantity)
	}
	return domain.OrderTotals{
		Subtotal: subtotal,
		Discount: discount,
		Delivery: delivery,
		Total:    subtotal - discount + delivery,
	}
}
