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
	"github.com/oakmart/api/internal/platform/pagination"
	"github.com/oakmart/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Lifecycle updates run as one transaction covering the order document, the
// stock documents the movement touches, and the outbox event record.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	events   *pfirestore.BaseRepository[orderEventDocument]
	stocks   *StockRepository
}

// NewOrderRepository constructs a Firestore-backed order repository. The stock
// repository is required so transitions can fold ledger writes into their
// transaction.
func NewOrderRepository(provider *pfirestore.Provider, stocks *StockRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if stocks == nil {
		return nil, errors.New("order repository requires stock repository")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	events := pfirestore.NewBaseRepository[orderEventDocument](provider, orderEventsCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders, events: events, stocks: stocks}, nil
}

// Insert creates the order document and, when supplied, its outbox event in a
// single transaction.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order, event *domain.OrderEvent) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: order id is required")
	}

	doc := newOrderDocument(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		if event != nil {
			eventRef, err := r.events.DocumentRef(ctx, event.ID)
			if err != nil {
				return err
			}
			if err := tx.Create(eventRef, newOrderEventDocument(*event)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Transition loads the order, hands a copy to apply, and persists whatever the
// mutation asks for atomically: the order document, the stock adjustment for
// every item (all-or-nothing), and the outbox event. Apply errors abort the
// transaction untouched; Persist=false commits nothing and reports
// Applied=false.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, now time.Time, apply func(order *domain.Order) (repositories.OrderMutation, error)) (repositories.OrderTransitionResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderTransitionResult{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return repositories.OrderTransitionResult{}, errors.New("order transition: order id is required")
	}
	if apply == nil {
		return repositories.OrderTransitionResult{}, errors.New("order transition: apply callback is required")
	}

	ts := now.UTC()
	var result repositories.OrderTransitionResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.OrderTransitionResult{}

		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		order := doc.toDomain(orderID)
		mutation, err := apply(&order)
		if err != nil {
			return err
		}
		if !mutation.Persist {
			result.Order = order
			return nil
		}

		// Stock reads must precede every write in the transaction, so the
		// ledger adjustment runs before the order document is touched.
		if mutation.Movement != repositories.StockMovementNone {
			lines := stockLinesFromItems(order.Items)
			if len(lines) == 0 {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, fmt.Sprintf("order %s has no stock lines", orderID), nil, nil)
			}
			restore := mutation.Movement == repositories.StockMovementRelease
			stocks, err := r.stocks.ApplyLines(ctx, tx, lines, restore, ts)
			if err != nil {
				return err
			}
			result.Stocks = stocks
		}

		order.UpdatedAt = ts
		if err := tx.Set(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		if mutation.Event != nil {
			eventRef, err := r.events.DocumentRef(ctx, mutation.Event.ID)
			if err != nil {
				return err
			}
			if err := tx.Create(eventRef, newOrderEventDocument(*mutation.Event)); err != nil {
				return err
			}
		}

		result.Order = order
		result.Applied = true
		return nil
	})
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			return repositories.OrderTransitionResult{}, invErr
		}
		return repositories.OrderTransitionResult{}, pfirestore.WrapError("orders.transition", err)
	}
	return result, nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages orders newest first, optionally narrowed by owner and status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if len(filter.Status) > 0 {
		query = query.Where("status", "in", filter.Status)
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

func stockLinesFromItems(items []domain.OrderItem) []domain.StockLine {
	lines := make([]domain.StockLine, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.SKU) == "" || item.Quantity <= 0 {
			continue
		}
		lines = append(lines, domain.StockLine{
			SKU:        strings.TrimSpace(item.SKU),
			ProductRef: strings.TrimSpace(item.ProductRef),
			Quantity:   item.Quantity,
		})
	}
	return lines
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	UserID          string                  `firestore:"userId"`
	Status          string                  `firestore:"status"`
	Currency        string                  `firestore:"currency"`
	Items           []orderItemDocument     `firestore:"items"`
	Totals          orderTotalsDocument     `firestore:"totals"`
	StockReconciled bool                    `firestore:"stockReconciled"`
	Payment         *paymentDetailsDocument `firestore:"payment,omitempty"`
	IsPaid          bool                    `firestore:"isPaid"`
	PaidAt          *time.Time              `firestore:"paidAt,omitempty"`
	Shipping        shippingDocument        `firestore:"shipping"`
	IsDelivered     bool                    `firestore:"isDelivered"`
	DeliveredAt     *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time              `firestore:"cancelledAt,omitempty"`
	CancelReason    *string                 `firestore:"cancelReason,omitempty"`
	Metadata        map[string]any          `firestore:"metadata,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductRef string `firestore:"productRef"`
	SKU        string `firestore:"sku"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"qty"`
	UnitPrice  int64  `firestore:"unitPrice"`
	FinalPrice int64  `firestore:"finalPrice"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Delivery int64 `firestore:"delivery"`
	Total    int64 `firestore:"total"`
}

type paymentDetailsDocument struct {
	GatewayOrderID string `firestore:"gatewayOrderId"`
	PaymentID      string `firestore:"paymentId,omitempty"`
	Signature      string `firestore:"signature,omitempty"`
}

type shippingDocument struct {
	RecipientName string     `firestore:"recipientName"`
	Phone         string     `firestore:"phone,omitempty"`
	Email         string     `firestore:"email,omitempty"`
	AddressLine1  string     `firestore:"addressLine1"`
	AddressLine2  string     `firestore:"addressLine2,omitempty"`
	City          string     `firestore:"city"`
	PostalCode    string     `firestore:"postalCode,omitempty"`
	DeliveryDate  *time.Time `firestore:"deliveryDate,omitempty"`
	DeliverySlot  string     `firestore:"deliverySlot,omitempty"`
	Instructions  string     `firestore:"instructions,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductRef: strings.TrimSpace(item.ProductRef),
			SKU:        strings.TrimSpace(item.SKU),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			FinalPrice: item.FinalPrice,
		}
	}
	var payment *paymentDetailsDocument
	if order.PaymentDetails != nil {
		payment = &paymentDetailsDocument{
			GatewayOrderID: strings.TrimSpace(order.PaymentDetails.GatewayOrderID),
			PaymentID:      strings.TrimSpace(order.PaymentDetails.PaymentID),
			Signature:      strings.TrimSpace(order.PaymentDetails.Signature),
		}
	}
	return orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		UserID:          strings.TrimSpace(order.UserID),
		Status:          string(order.Status),
		Currency:        strings.TrimSpace(order.Currency),
		Items:           items,
		Totals:          orderTotalsDocument(order.Totals),
		StockReconciled: order.StockReconciled,
		Payment:         payment,
		IsPaid:          order.IsPaid,
		PaidAt:          order.PaidAt,
		Shipping: shippingDocument{
			RecipientName: strings.TrimSpace(order.Shipping.RecipientName),
			Phone:         strings.TrimSpace(order.Shipping.Phone),
			Email:         strings.TrimSpace(order.Shipping.Email),
			AddressLine1:  strings.TrimSpace(order.Shipping.AddressLine1),
			AddressLine2:  strings.TrimSpace(order.Shipping.AddressLine2),
			City:          strings.TrimSpace(order.Shipping.City),
			PostalCode:    strings.TrimSpace(order.Shipping.PostalCode),
			DeliveryDate:  order.Shipping.DeliveryDate,
			DeliverySlot:  strings.TrimSpace(order.Shipping.DeliverySlot),
			Instructions:  strings.TrimSpace(order.Shipping.Instructions),
		},
		IsDelivered:  order.IsDelivered,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
		CancelReason: order.CancelReason,
		Metadata:     order.Metadata,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			FinalPrice: item.FinalPrice,
		}
	}
	var payment *domain.PaymentDetails
	if d.Payment != nil {
		payment = &domain.PaymentDetails{
			GatewayOrderID: d.Payment.GatewayOrderID,
			PaymentID:      d.Payment.PaymentID,
			Signature:      d.Payment.Signature,
		}
	}
	return domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Status:          domain.OrderStatus(d.Status),
		Currency:        d.Currency,
		Items:           items,
		Totals:          domain.OrderTotals(d.Totals),
		StockReconciled: d.StockReconciled,
		PaymentDetails:  payment,
		IsPaid:          d.IsPaid,
		PaidAt:          d.PaidAt,
		Shipping: domain.ShippingDetails{
			RecipientName: d.Shipping.RecipientName,
			Phone:         d.Shipping.Phone,
			Email:         d.Shipping.Email,
			AddressLine1:  d.Shipping.AddressLine1,
			AddressLine2:  d.Shipping.AddressLine2,
			City:          d.Shipping.City,
			PostalCode:    d.Shipping.PostalCode,
			DeliveryDate:  d.Shipping.DeliveryDate,
			DeliverySlot:  d.Shipping.DeliverySlot,
			Instructions:  d.Shipping.Instructions,
		},
		IsDelivered:  d.IsDelivered,
		DeliveredAt:  d.DeliveredAt,
		CancelledAt:  d.CancelledAt,
		CancelReason: d.CancelReason,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}

// Page tokens are pagination cursors whose StartAfter values mirror the List
// order-by clause: createdAt (RFC 3339), then document ID.
func encodeOrderPageToken(token orderPageToken) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{token.CreatedAt.UTC().Format(time.RFC3339Nano), token.ID},
	})
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	cursor, err := pagination.DecodeToken(encoded)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawCreatedAt, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor createdAt is not a string", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor createdAt: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: cursor document id is missing", pagination.ErrInvalidPageToken)
	}
	return &orderPageToken{ID: id, CreatedAt: createdAt}, nil
}
