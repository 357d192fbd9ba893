package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler exposes role administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(FeatureRoles, ActionView))
		r.Get("/", h.listRoles)
		r.Get("/{id}/permissions", h.rolePermissions)
	})
	r.With(h.rbac.Require(FeatureRoles, ActionUpdate)).Put("/{id}/permissions", h.replacePermissions)
}

// MountMe registers GET / returning the caller's principal and capability matrix.
func (h *Handler) MountMe(r chi.Router) {
	r.Get("/", h.me)
}

type permissionInput struct {
	Feature string `json:"feature" validate:"required"`
	View    bool   `json:"view"`
	Create  bool   `json:"create"`
	Update  bool   `json:"update"`
	Delete  bool   `json:"delete"`
}

type replacePermissionsRequest struct {
	Permissions []permissionInput `json:"permissions" validate:"dive"`
}

type permissionResponse struct {
	Feature Feature `json:"feature"`
	Capabilities
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": toResponse(perms)})
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req replacePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	perms := make([]FeaturePermission, 0, len(req.Permissions))
	for _, in := range req.Permissions {
		feature, err := ParseFeature(in.Feature)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		perms = append(perms, FeaturePermission{
			Feature:   feature,
			CanView:   in.View,
			CanCreate: in.Create,
			CanUpdate: in.Update,
			CanDelete: in.Delete,
		})
	}
	saved, err := h.service.ReplaceRolePermissions(r.Context(), roleID, perms)
	if err != nil {
		h.logger.Warn("replace role permissions", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": toResponse(saved)})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	caps, err := h.service.EffectiveCapabilities(r.Context(), p)
	if err != nil {
		h.logger.Error("effective capabilities", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"principal": p, "capabilities": caps})
}

func roleIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid role id", shared.ErrValidation)
	}
	return id, nil
}

func toResponse(perms []FeaturePermission) []permissionResponse {
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{Feature: p.Feature, Capabilities: Capabilities{}.union(p)})
	}
	return out
}
