package parties

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

// Handler serves party endpoints.
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

func either(action rbac.Action) rbac.Requirement {
	return rbac.AnyOf(rbac.Own(rbac.ResourceParty, action), rbac.All(rbac.ResourceParty, action))
}

// MountRoutes registers party routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/", h.list)
	r.With(h.guard.Require(either(rbac.ActionCreate))).Post("/", h.create)
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/{id}", h.get)
	r.With(h.guard.Require(either(rbac.ActionUpdate))).Put("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	grant, _ := rbac.GrantFromContext(r.Context())
	page := shared.ParsePageRequest(r)
	list, total, err := h.service.List(r.Context(), grant, ListFilter{
		Kind:   Kind(r.URL.Query().Get("kind")),
		Search: r.URL.Query().Get("q"),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []Party{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"parties":    list,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	p, err := h.service.Get(r.Context(), grant, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if !h.decode(w, r, &in) {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	p, err := h.service.Create(r.Context(), grant, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in Input
	if !h.decode(w, r, &in) {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	p, err := h.service.Update(r.Context(), grant, id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
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
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateCR):
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Code: httpx.CodeConflict, Detail: err.Error()})
	default:
		rbac.RespondError(w, h.logger, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "invalid id"})
		return 0, false
	}
	return id, true
}
