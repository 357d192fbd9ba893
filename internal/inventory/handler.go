package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	threshold int
}

// NewHandler constructs inventory handler. threshold is the default for the
// low-stock listing.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, threshold int) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, threshold: threshold}
}

// MountRoutes registers inventory routes under /products.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.FeatureProducts, rbac.ActionView))
		r.Get("/low-stock", h.handleLowStock)
		r.Get("/{id}/stock", h.handleStock)
	})
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", shared.ErrValidation))
		return
	}
	qty := 0
	if raw := r.URL.Query().Get("qty"); raw != "" {
		if qty, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid qty", shared.ErrValidation))
			return
		}
	}
	avail, err := h.service.Availability(r.Context(), id, qty)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.threshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid threshold", shared.ErrValidation))
			return
		}
		threshold = v
	}
	products, err := h.service.LowStock(r.Context(), threshold, nil)
	if err != nil {
		h.logger.Error("low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"threshold": threshold, "products": products})
}
