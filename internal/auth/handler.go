package auth

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

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	permissions    rbac.PermissionSource
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, permissions rbac.PermissionSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		permissions:    permissions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrf)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type userView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	CompanyID int64  `json:"company_id,omitempty"`
}

func toUserView(u *User) userView {
	return userView{ID: u.ID, Email: u.Email, FullName: u.FullName, CompanyID: u.CompanyID}
}

func (h *Handler) csrf(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, errors.New("session missing"))
		return
	}
	// The middleware skips anonymous sessions, so login checks the token issued by /auth/csrf.
	if err := h.csrfManager.VerifyToken(r.Context(), sess, shared.TokenFromRequest(r)); err != nil {
		h.logger.Info("login csrf rejected", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusForbidden, Code: httpx.CodeCSRFFailed, Detail: err.Error()})
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Detail: err.Error()})
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Info("login rejected", slog.String("remote", r.RemoteAddr))
			httpx.Write(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Code: httpx.CodeUnauthenticated, Detail: "invalid email or password"})
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.sessionManager.Renew(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.SetCompany(user.CompanyID)
	sess.Delete(shared.CSRFSessionKey)
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	record := LoginSession{
		ID:        sess.ID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.sessionManager.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.service.RegisterSession(r.Context(), record); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("login", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, map[string]any{"user": toUserView(user), "csrf_token": token})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if sess.User() != "" {
			if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

// me reports the caller and their effective permissions. Permission loading
// fails closed like the route guard.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.SessionIdentity(r)
	if !ok {
		httpx.Write(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Code: httpx.CodeUnauthenticated, Detail: "authentication required"})
		return
	}
	user, err := h.service.User(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Write(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Code: httpx.CodeUnauthenticated, Detail: "account unavailable"})
			return
		}
		h.logger.Error("load current user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	perms := []string{}
	if h.permissions != nil {
		set, err := h.permissions.EffectivePermissions(r.Context(), principal.UserID)
		if err != nil {
			h.logger.Error("load effective permissions", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
			httpx.Write(w, httpx.ProblemDetail{Status: http.StatusServiceUnavailable, Code: httpx.CodeAuthorizationUnavailable, Detail: "permissions could not be evaluated"})
			return
		}
		perms = rbac.Strings(set.Slice())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": toUserView(user), "permissions": perms})
}
