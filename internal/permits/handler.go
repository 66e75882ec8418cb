package permits

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

// MaxExpiringWithinDays bounds the expiring_within query parameter.
const MaxExpiringWithinDays = 365

// Handler serves permit endpoints.
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
	return rbac.AnyOf(rbac.Own(rbac.ResourcePermit, action), rbac.All(rbac.ResourcePermit, action))
}

// MountRoutes registers permit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/", h.list)
	r.With(h.guard.Require(either(rbac.ActionCreate))).Post("/", h.create)
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/{id}", h.get)
	r.With(h.guard.Require(either(rbac.ActionUpdate))).Put("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if raw := q.Get("promoter_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.invalid(w, "invalid promoter_id")
			return
		}
		filter.PromoterID = id
	}
	if raw := q.Get("expiring_within"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 || days > MaxExpiringWithinDays {
			h.invalid(w, "expiring_within must be between 0 and 365 days")
			return
		}
		cutoff := h.service.now().AddDate(0, 0, days)
		filter.ExpiringBefore = &cutoff
	}
	page := shared.ParsePageRequest(r)
	filter.Limit = page.PerPage
	filter.Offset = page.Offset()

	grant, _ := rbac.GrantFromContext(r.Context())
	list, total, err := h.service.List(r.Context(), grant, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []Permit{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permits":    list,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
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
	id, ok := h.pathID(w, r)
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
		h.invalid(w, err.Error())
		return false
	}
	return true
}

func (h *Handler) invalid(w http.ResponseWriter, detail string) {
	httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: detail})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateNumber):
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Code: httpx.CodeConflict, Detail: err.Error()})
	default:
		rbac.RespondError(w, h.logger, err)
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.invalid(w, "invalid id")
		return 0, false
	}
	return id, true
}
