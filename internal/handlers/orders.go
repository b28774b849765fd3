package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/api/internal/platform/auth"
	"github.com/oakmart/api/internal/platform/httpx"
	"github.com/oakmart/api/internal/platform/pagination"
	"github.com/oakmart/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
	maxOrderActionBody   = 4 * 1024
)

// OrderHandlers exposes order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter rateLimiter
}

// OrderHandlerOption customises OrderHandlers construction.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderRateLimit caps order placement per caller to perMinute requests.
// Non-positive values disable the limiter.
func WithOrderRateLimit(perMinute int) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(perMinute, time.Minute, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:verify-payment", h.verifyPayment)
}

type placeOrderRequest struct {
	Currency string                  `json:"currency"`
	Items    []placeOrderItemRequest `json:"items"`
	Shipping shippingRequest         `json:"shipping"`
	Discount int64                   `json:"discount"`
	Delivery int64                   `json:"delivery"`
	Metadata map[string]any          `json:"metadata"`
}

type placeOrderItemRequest struct {
	ProductRef string `json:"product_ref"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	FinalPrice int64  `json:"final_price"`
}

type shippingRequest struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	DeliveryDate  string `json:"delivery_date"`
	DeliverySlot  string `json:"delivery_slot"`
	Instructions  string `json:"instructions"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests, retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	shipping, err := buildShippingDetails(req.Shipping)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	items := make([]services.PlaceOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.PlaceOrderItem{
			ProductRef: item.ProductRef,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			FinalPrice: item.FinalPrice,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:   strings.TrimSpace(identity.UID),
		Currency: req.Currency,
		Items:    items,
		Shipping: shipping,
		Discount: req.Discount,
		Delivery: req.Delivery,
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID: strings.TrimSpace(identity.UID),
		Status: parseFilterValues(r.URL.Query()["status"]),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	order, ok := h.loadOwnedOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	order, ok := h.loadOwnedOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if body, err := readLimitedBody(r, maxOrderActionBody); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: order.ID,
		ActorID: strings.TrimSpace(identity.UID),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	order, ok := h.loadOwnedOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderActionBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	verified, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:   order.ID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		ActorID:   strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(verified)})
}

// loadOwnedOrder fetches the order and hides it behind a 404 when the caller
// does not own it.
func (h *OrderHandlers) loadOwnedOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *auth.Identity) (services.Order, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.Order{}, false
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return services.Order{}, false
	}
	if !strings.EqualFold(strings.TrimSpace(order.UserID), strings.TrimSpace(identity.UID)) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return services.Order{}, false
	}
	return order, true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter, serviceReady bool) (*auth.Identity, bool) {
	if !serviceReady {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	IsPaid      bool   `json:"is_paid"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	UserID          string                `json:"user_id"`
	Status          string                `json:"status"`
	Currency        string                `json:"currency"`
	Totals          orderTotalsPayload    `json:"totals"`
	Items           []orderItemPayload    `json:"items"`
	StockReconciled bool                  `json:"stock_reconciled"`
	Payment         *orderPaymentPayload  `json:"payment,omitempty"`
	IsPaid          bool                  `json:"is_paid"`
	PaidAt          string                `json:"paid_at,omitempty"`
	Shipping        orderShippingPayload  `json:"shipping"`
	IsDelivered     bool                  `json:"is_delivered"`
	DeliveredAt     string                `json:"delivered_at,omitempty"`
	CancelledAt     string                `json:"cancelled_at,omitempty"`
	CancelReason    *string               `json:"cancel_reason,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Delivery int64 `json:"delivery"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductRef string `json:"product_ref,omitempty"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	FinalPrice int64  `json:"final_price"`
}

type orderPaymentPayload struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id,omitempty"`
}

type orderShippingPayload struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2,omitempty"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code,omitempty"`
	DeliveryDate  string `json:"delivery_date,omitempty"`
	DeliverySlot  string `json:"delivery_slot,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Status:      strings.TrimSpace(string(order.Status)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:       order.Totals.Total,
		IsPaid:      order.IsPaid,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      strings.TrimSpace(string(order.Status)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Delivery: order.Totals.Delivery,
			Total:    order.Totals.Total,
		},
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		StockReconciled: order.StockReconciled,
		IsPaid:          order.IsPaid,
		PaidAt:          formatTime(pointerTime(order.PaidAt)),
		Shipping: orderShippingPayload{
			RecipientName: strings.TrimSpace(order.Shipping.RecipientName),
			Phone:         strings.TrimSpace(order.Shipping.Phone),
			Email:         strings.TrimSpace(order.Shipping.Email),
			AddressLine1:  strings.TrimSpace(order.Shipping.AddressLine1),
			AddressLine2:  strings.TrimSpace(order.Shipping.AddressLine2),
			City:          strings.TrimSpace(order.Shipping.City),
			PostalCode:    strings.TrimSpace(order.Shipping.PostalCode),
			DeliveryDate:  formatTime(pointerTime(order.Shipping.DeliveryDate)),
			DeliverySlot:  strings.TrimSpace(order.Shipping.DeliverySlot),
			Instructions:  strings.TrimSpace(order.Shipping.Instructions),
		},
		IsDelivered:  order.IsDelivered,
		DeliveredAt:  formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:  formatTime(pointerTime(order.CancelledAt)),
		CancelReason: cloneStringPointer(order.CancelReason),
		Metadata:     cloneMap(order.Metadata),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
	}

	if order.PaymentDetails != nil {
		payload.Payment = &orderPaymentPayload{
			GatewayOrderID: strings.TrimSpace(order.PaymentDetails.GatewayOrderID),
			PaymentID:      strings.TrimSpace(order.PaymentDetails.PaymentID),
		}
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductRef: strings.TrimSpace(item.ProductRef),
			SKU:        strings.TrimSpace(item.SKU),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			FinalPrice: item.FinalPrice,
		})
	}

	return payload
}

func buildShippingDetails(req shippingRequest) (services.ShippingDetails, error) {
	shipping := services.ShippingDetails{
		RecipientName: strings.TrimSpace(req.RecipientName),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
		AddressLine1:  strings.TrimSpace(req.AddressLine1),
		AddressLine2:  strings.TrimSpace(req.AddressLine2),
		City:          strings.TrimSpace(req.City),
		PostalCode:    strings.TrimSpace(req.PostalCode),
		DeliverySlot:  strings.TrimSpace(req.DeliverySlot),
		Instructions:  strings.TrimSpace(req.Instructions),
	}
	if raw := strings.TrimSpace(req.DeliveryDate); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return services.ShippingDetails{}, errors.New("delivery_date must be a valid RFC3339 timestamp")
		}
		ts = ts.UTC()
		shipping.DeliveryDate = &ts
	}
	return shipping, nil
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"skus": stockErr.SKUs}))
	case errors.Is(err, services.ErrInventoryStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPaymentRejected):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment signature could not be verified", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment gateway rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
