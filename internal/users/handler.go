package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

// Handler manages user management routes.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Guard
	validator *validator.Validate
}

// NewHandler creates a users handler.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

var (
	permRead       = rbac.All(rbac.ResourceUser, rbac.ActionRead)
	permUpdate     = rbac.All(rbac.ResourceUser, rbac.ActionUpdate)
	permAssignRole = rbac.All(rbac.ResourceUser, rbac.ActionAssignRole)
)

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(permRead)).Get("/", h.listUsers)
	r.With(h.guard.RequireAny(permRead)).Get("/{id}", h.getUser)
	r.With(h.guard.RequireAny(permUpdate)).Put("/{id}/status", h.setStatus)
	r.With(h.guard.RequireAny(permRead, permAssignRole)).Get("/{id}/roles", h.listRoles)
	r.With(h.guard.RequireAny(permAssignRole)).Post("/{id}/roles", h.assignRole)
	r.With(h.guard.RequireAny(permAssignRole)).Delete("/{id}/roles/{roleID}", h.revokeRole)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	company, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	list, total, err := h.service.ListUsers(r.Context(), ListFilter{
		Search:    r.URL.Query().Get("q"),
		CompanyID: company,
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users":      list,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type statusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetActive(r.Context(), actorID(r), id, *req.Active); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	roles, err := h.service.UserRoles(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type assignRequest struct {
	RoleID    int64  `json:"role_id" validate:"required,gt=0"`
	CompanyID *int64 `json:"company_id,omitempty" validate:"omitempty,gt=0"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), actorID(r), id, req.RoleID, req.CompanyID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), actorID(r), id, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: err.Error()})
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	rbac.RespondError(w, h.logger, err)
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
