package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/api/internal/platform/auth"
	"github.com/oakmart/api/internal/platform/httpx"
	"github.com/oakmart/api/internal/platform/pagination"
	"github.com/oakmart/api/internal/services"
)

const (
	defaultFeedPageSize = 20
	maxFeedPageSize     = 100
	maxAdminBodySize    = 16 * 1024
)

// AdminHandlers exposes back office endpoints: lifecycle transitions, the
// notification feed, and stock configuration.
type AdminHandlers struct {
	authn         *auth.Authenticator
	orders        services.OrderService
	inventory     services.InventoryService
	notifications services.NotificationService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, inventory services.InventoryService, notifications services.NotificationService) *AdminHandlers {
	return &AdminHandlers{
		authn:         authn,
		orders:        orders,
		inventory:     inventory,
		notifications: notifications,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Put("/orders/{orderID}/status", h.updateOrderStatus)
	r.Get("/notifications", h.listNotifications)
	r.Post("/notifications/{notificationID}:read", h.markNotificationRead)
	r.Get("/stocks:low", h.listLowStock)
	r.Get("/stocks/{sku}", h.getStock)
	r.Put("/stocks/{sku}", h.configureStock)
}

type updateOrderStatusRequest struct {
	Status   string         `json:"status"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

type configureStockRequest struct {
	ProductRef   string `json:"product_ref"`
	CountInStock int    `json:"count_in_stock"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(ctx, w, h.orders != nil); !ok {
		return
	}

	query := r.URL.Query()
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID: strings.TrimSpace(query.Get("user_id")),
		Status: parseFilterValues(query["status"]),
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

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireAdminIdentity(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: services.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:      strings.TrimSpace(identity.UID),
		Reason:       strings.TrimSpace(req.Reason),
		Metadata:     cloneMap(req.Metadata),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(ctx, w, h.notifications != nil); !ok {
		return
	}

	query := r.URL.Query()
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultFeedPageSize,
		MaxPageSize:     maxFeedPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	unreadOnly := false
	if raw := strings.TrimSpace(query.Get("unread_only")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unread_only must be a boolean", http.StatusBadRequest))
			return
		}
		unreadOnly = parsed
	}

	page, err := h.notifications.List(ctx, services.NotificationFeedFilter{
		TargetUser: strings.TrimSpace(query.Get("target_user")),
		UnreadOnly: unreadOnly,
		Types:      parseFilterValues(query["type"]),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]notificationPayload, 0, len(page.Items))
	for _, notification := range page.Items {
		items = append(items, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, notificationListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireAdminIdentity(ctx, w, h.notifications != nil)
	if !ok {
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}

	notification, err := h.notifications.MarkRead(ctx, services.MarkNotificationReadCommand{
		NotificationID: notificationID,
		ActorID:        strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, notificationResponse{Notification: buildNotificationPayload(notification)})
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(ctx, w, h.inventory != nil); !ok {
		return
	}

	query := r.URL.Query()
	threshold := 0
	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = parsed
	}
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultFeedPageSize,
		MaxPageSize:     maxFeedPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLowStock(ctx, services.LowStockFilter{
		Threshold: threshold,
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]stockPayload, 0, len(page.Items))
	for _, stock := range page.Items {
		items = append(items, buildStockPayload(stock))
	}
	writeJSONResponse(w, http.StatusOK, stockListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(ctx, w, h.inventory != nil); !ok {
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	stock, err := h.inventory.GetStock(ctx, sku)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(stock)})
}

func (h *AdminHandlers) configureStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireAdminIdentity(ctx, w, h.inventory != nil)
	if !ok {
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req configureStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	stock, err := h.inventory.ConfigureStock(ctx, services.ConfigureStockCommand{
		SKU:          sku,
		ProductRef:   strings.TrimSpace(req.ProductRef),
		CountInStock: req.CountInStock,
		ActorID:      strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(stock)})
}

func requireAdminIdentity(ctx context.Context, w http.ResponseWriter, serviceReady bool) (*auth.Identity, bool) {
	if !serviceReady {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type notificationListResponse struct {
	Items         []notificationPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type notificationResponse struct {
	Notification notificationPayload `json:"notification"`
}

type notificationPayload struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	TargetUser string         `json:"target_user,omitempty"`
	Read       bool           `json:"read"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func buildNotificationPayload(notification services.Notification) notificationPayload {
	return notificationPayload{
		ID:         strings.TrimSpace(notification.ID),
		Type:       strings.TrimSpace(string(notification.Type)),
		Title:      notification.Title,
		Message:    notification.Message,
		TargetUser: strings.TrimSpace(notification.TargetUser),
		Read:       notification.Read,
		Metadata:   cloneMap(notification.Metadata),
		CreatedAt:  formatTime(notification.CreatedAt),
	}
}

type stockListResponse struct {
	Items         []stockPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type stockResponse struct {
	Stock stockPayload `json:"stock"`
}

type stockPayload struct {
	SKU          string `json:"sku"`
	ProductRef   string `json:"product_ref,omitempty"`
	CountInStock int    `json:"count_in_stock"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

func buildStockPayload(stock services.ProductStock) stockPayload {
	return stockPayload{
		SKU:          strings.TrimSpace(stock.SKU),
		ProductRef:   strings.TrimSpace(stock.ProductRef),
		CountInStock: stock.CountInStock,
		UpdatedAt:    formatTime(stock.UpdatedAt),
	}
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "resource is not owned by the caller", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "failed to process notification request", http.StatusInternalServerError))
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stockErr *services.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"skus": stockErr.SKUs}))
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
