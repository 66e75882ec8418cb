package promoters

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/platform/objectstore"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

// MaxUploadBytes caps a single document upload.
const MaxUploadBytes = 10 << 20

var allowedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// Handler serves promoter endpoints.
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

func either(resource rbac.Resource, action rbac.Action) rbac.Requirement {
	return rbac.AnyOf(rbac.Own(resource, action), rbac.All(resource, action))
}

// MountRoutes registers promoter routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(either(rbac.ResourcePromoter, rbac.ActionRead))).Get("/", h.list)
	r.With(h.guard.Require(either(rbac.ResourcePromoter, rbac.ActionCreate))).Post("/", h.create)
	r.With(h.guard.Require(either(rbac.ResourcePromoter, rbac.ActionRead))).Get("/{id}", h.get)
	r.With(h.guard.Require(either(rbac.ResourcePromoter, rbac.ActionUpdate))).Put("/{id}", h.update)
	r.With(h.guard.Require(either(rbac.ResourceFile, rbac.ActionUpload))).Post("/{id}/documents/{kind}", h.upload)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	grant, _ := rbac.GrantFromContext(r.Context())
	page := shared.ParsePageRequest(r)
	list, total, err := h.service.List(r.Context(), grant, ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("q"),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []Promoter{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"promoters":  list,
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

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	kind, ok := ParseDocumentKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "kind must be id_card or passport"})
		return
	}
	// Room for the multipart envelope on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+(64<<10))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(w)
			return
		}
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "multipart form with a file field required"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: "file field required"})
		return
	}
	defer func() {
		_ = file.Close()
	}()
	if header.Size > MaxUploadBytes {
		h.tooLarge(w)
		return
	}
	contentType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !allowedTypes[contentType] {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusUnsupportedMediaType, Code: httpx.CodeValidation, Detail: "pdf, jpeg or png required"})
		return
	}
	grant, _ := rbac.GrantFromContext(r.Context())
	p, err := h.service.UploadDocument(r.Context(), grant, id, kind, header.Filename, contentType, file)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) tooLarge(w http.ResponseWriter) {
	httpx.Write(w, httpx.ProblemDetail{Status: http.StatusRequestEntityTooLarge, Code: httpx.CodeValidation, Detail: "document exceeds 10 MiB"})
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
	case errors.Is(err, ErrDuplicateID):
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Code: httpx.CodeConflict, Detail: err.Error()})
	case errors.Is(err, objectstore.ErrTooLarge):
		h.tooLarge(w)
	case errors.Is(err, ErrUploadsDisabled):
		httpx.Problem(w, http.StatusServiceUnavailable, "Uploads Unavailable", err.Error())
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
