package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/api/internal/platform/httpx"
)

// OutboxDrainer settles pending order events on demand.
type OutboxDrainer interface {
	Drain(ctx context.Context) (int, error)
}

// InternalHandlers exposes operational endpoints for trusted internal callers.
type InternalHandlers struct {
	outbox OutboxDrainer
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(outbox OutboxDrainer) *InternalHandlers {
	return &InternalHandlers{outbox: outbox}
}

// Routes registers the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/outbox:drain", h.drainOutbox)
}

func (h *InternalHandlers) drainOutbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.outbox == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "outbox drainer not configured", http.StatusServiceUnavailable))
		return
	}

	settled, err := h.outbox.Drain(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("outbox_drain_failed", "failed to drain pending events", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"settled": settled})
}
