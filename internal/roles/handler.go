package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/rbac"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.All(rbac.ResourceRole, rbac.ActionRead), rbac.All(rbac.ResourceRole, rbac.ActionManage)))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/permissions", h.listPermissions)
		r.Get("/{id}/members", h.listMembers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(rbac.All(rbac.ResourceRole, rbac.ActionManage)))
		r.Post("/", h.saveRole)
		r.Delete("/{id}", h.retireRole)
		r.Put("/{id}/permissions/{permID}", h.attachPermission)
		r.Delete("/{id}/permissions/{permID}", h.detachPermission)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	if role.Permissions == nil {
		role.Permissions = []rbac.PermissionRecord{}
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	names := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		names = append(names, p.Name)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_id": id, "permissions": role.Permissions, "names": names})
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), id)
	if err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) saveRole(w http.ResponseWriter, r *http.Request) {
	var input rbac.RoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: err.Error()})
		return
	}
	role, err := h.service.SaveRole(r.Context(), actorID(r), input)
	if err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) retireRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RetireRole(r.Context(), actorID(r), id); err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, permID, ok := rolePermIDs(w, r)
	if !ok {
		return
	}
	if err := h.service.AttachPermission(r.Context(), actorID(r), roleID, permID); err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, permID, ok := rolePermIDs(w, r)
	if !ok {
		return
	}
	if err := h.service.DetachPermission(r.Context(), actorID(r), roleID, permID); err != nil {
		rbac.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func rolePermIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	roleID, ok := pathID(w, r, "id")
	if !ok {
		return 0, 0, false
	}
	permID, ok := pathID(w, r, "permID")
	if !ok {
		return 0, 0, false
	}
	return roleID, permID, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "invalid " + name})
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	grant, _ := rbac.GrantFromContext(r.Context())
	return grant.Principal.UserID
}
