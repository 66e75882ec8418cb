package contracts

import (
	"context"
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

// Handler serves contract endpoints.
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
	return rbac.AnyOf(rbac.Own(rbac.ResourceContract, action), rbac.All(rbac.ResourceContract, action))
}

// MountRoutes registers contract routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/", h.list)
	r.With(h.guard.Require(either(rbac.ActionCreate))).Post("/", h.create)
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/{id}", h.get)
	r.With(h.guard.Require(either(rbac.ActionRead))).Get("/{id}/history", h.history)
	r.With(h.guard.Require(either(rbac.ActionUpdate))).Put("/{id}", h.update)
	r.With(h.guard.Require(either(rbac.ActionApprove))).Post("/{id}/approve", h.approve)
	r.With(h.guard.Require(either(rbac.ActionReject))).Post("/{id}/reject", h.reject)
	r.With(h.guard.RequireAll(rbac.All(rbac.ResourceContract, rbac.ActionArchive))).Post("/{id}/archive", h.archive)
	r.With(h.guard.Require(either(rbac.ActionGenerate))).Post("/{id}/generate", h.generate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	grant, _ := rbac.GrantFromContext(r.Context())
	page := shared.ParsePageRequest(r)
	status := Status(r.URL.Query().Get("status"))
	list, total, err := h.service.List(r.Context(), grant, ListFilter{
		Status: status,
		Search: r.URL.Query().Get("q"),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []Contract{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"contracts":  list,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if !h.decode(w, r, &in) {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	c, err := h.service.Create(r.Context(), grant, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	c, err := h.service.Get(r.Context(), grant, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	logs, err := h.service.History(r.Context(), grant, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": logs})
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
	c, err := h.service.Update(r.Context(), grant, id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type decisionRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Archive)
}

type decideFunc func(ctx context.Context, grant rbac.Grant, id int64, note string) (Contract, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	c, err := fn(r.Context(), grant, id, req.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	if err := h.service.RequestGeneration(r.Context(), grant, id, r.Header.Get(shared.IdempotencyHeader)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"contract_id": id, "queued": true})
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
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrDuplicateRequest):
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
