package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contracthub/contracthub/internal/platform/httpx"
)

// PermissionsHandler serves the permission catalog and view refresh endpoints.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	view    *MaterializedView
	guard   Guard
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, view *MaterializedView, guard Guard) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, view: view, guard: guard}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(All(ResourcePermission, ActionRead))).Get("/", h.listPermissions)
	r.With(h.guard.RequireAny(All(ResourceSystem, ActionManage))).Post("/refresh", h.refresh)
	r.With(h.guard.RequireAny(All(ResourceSystem, ActionManage))).Get("/view", h.viewStatus)
}

type permissionView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Scope       string `json:"scope"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

func toPermissionViews(records []PermissionRecord) []permissionView {
	out := make([]permissionView, 0, len(records))
	for _, rec := range records {
		out = append(out, permissionView{
			ID:          rec.ID,
			Name:        rec.Name,
			Resource:    string(rec.Permission.Resource),
			Action:      string(rec.Permission.Action),
			Scope:       rec.Permission.Scope.String(),
			DisplayName: rec.DisplayName,
			Description: rec.Description,
		})
	}
	return out
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": toPermissionViews(perms)})
}

func (h *PermissionsHandler) refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.service.Refresh(r.Context()); err != nil {
		RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"refreshed":   true,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (h *PermissionsHandler) viewStatus(w http.ResponseWriter, r *http.Request) {
	if h.view == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	built := h.view.BuiltAt()
	body := map[string]any{"enabled": true, "stale": h.view.Stale()}
	if !built.IsZero() {
		body["built_at"] = built.UTC()
	}
	httpx.JSON(w, http.StatusOK, body)
}

// RespondError maps RBAC service errors to problem responses. Unexpected
// errors are logged and never echoed to the client.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		httpx.Write(w, httpx.ProblemDetail{
			Status:  http.StatusForbidden,
			Code:    httpx.CodePermissionDenied,
			Detail:  "missing required permission",
			Missing: Strings(denied.Missing),
		})
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidInput):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	default:
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("rbac request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
