package attendance

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

// Handler serves attendance endpoints.
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
	return rbac.AnyOf(rbac.Own(rbac.ResourceAttendance, action), rbac.All(rbac.ResourceAttendance, action))
}

// MountRoutes registers attendance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(either(rbac.ActionCheckIn))).Post("/check-in", h.checkIn)
	r.With(h.guard.Require(either(rbac.ActionCheckOut))).Post("/check-out", h.checkOut)
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/", h.list)
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	var in CheckIn
	if r.ContentLength != 0 && !h.decode(w, r, &in) {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	rec, err := h.service.CheckIn(r.Context(), grant.Principal, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

type checkOutRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	var req checkOutRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	rec, err := h.service.CheckOut(r.Context(), grant.Principal, req.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePageRequest(r)
	filter := ListFilter{Limit: page.PerPage, Offset: page.Offset()}
	var ok bool
	if filter.From, ok = parseDate(w, "from", q.Get("from")); !ok {
		return
	}
	if filter.To, ok = parseDate(w, "to", q.Get("to")); !ok {
		return
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "invalid user_id"})
			return
		}
		filter.ForUser = id
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	records, total, err := h.service.List(r.Context(), grant, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"records":    records,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

// parseDate accepts YYYY-MM-DD in UTC.
func parseDate(w http.ResponseWriter, name, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "invalid " + name + " date"})
		return nil, false
	}
	return &t, true
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
	case errors.Is(err, ErrAlreadyCheckedIn), errors.Is(err, ErrNotCheckedIn):
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Code: httpx.CodeConflict, Detail: err.Error()})
	default:
		rbac.RespondError(w, h.logger, err)
	}
}
