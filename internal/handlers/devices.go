package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/api/internal/platform/auth"
	"github.com/oakmart/api/internal/platform/httpx"
	"github.com/oakmart/api/internal/services"
)

const maxDeviceBodySize = 4 * 1024

// DeviceHandlers manages push token registration for the authenticated user.
type DeviceHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewDeviceHandlers constructs a new DeviceHandlers instance.
func NewDeviceHandlers(authn *auth.Authenticator, notifications services.NotificationService) *DeviceHandlers {
	return &DeviceHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes registers the /me/devices endpoints.
func (h *DeviceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/devices", h.registerDevice)
	r.Delete("/devices/{token}", h.unregisterDevice)
}

type registerDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type devicePayload struct {
	Token     string `json:"token"`
	Platform  string `json:"platform"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (h *DeviceHandlers) registerDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxDeviceBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req registerDeviceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	role := services.DeviceRole("user")
	if identity.HasRole(auth.RoleAdmin) {
		role = services.DeviceRole(auth.RoleAdmin)
	}
	device, err := h.notifications.RegisterDevice(ctx, services.RegisterDeviceCommand{
		UserID:   strings.TrimSpace(identity.UID),
		Token:    strings.TrimSpace(req.Token),
		Platform: services.DevicePlatform(strings.ToLower(strings.TrimSpace(req.Platform))),
		Role:     role,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, devicePayload{
		Token:     device.Token,
		Platform:  string(device.Platform),
		IsActive:  device.IsActive,
		CreatedAt: formatTime(device.CreatedAt),
		UpdatedAt: formatTime(device.UpdatedAt),
	})
}

func (h *DeviceHandlers) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil)
	if !ok {
		return
	}

	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}

	if err := h.notifications.UnregisterDevice(ctx, services.UnregisterDeviceCommand{
		UserID: strings.TrimSpace(identity.UID),
		Token:  token,
	}); err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
