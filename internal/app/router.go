package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/contracthub/contracthub/internal/attendance"
	"github.com/contracthub/contracthub/internal/auth"
	"github.com/contracthub/contracthub/internal/contracts"
	"github.com/contracthub/contracthub/internal/observability"
	"github.com/contracthub/contracthub/internal/parties"
	"github.com/contracthub/contracthub/internal/permits"
	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/promoters"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/roles"
	"github.com/contracthub/contracthub/internal/shared"
	"github.com/contracthub/contracthub/internal/users"
	"github.com/contracthub/contracthub/jobs"
)

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	Readiness      map[string]ReadinessCheck

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	ContractsHandler   *contracts.Handler
	PromotersHandler   *promoters.Handler
	PartiesHandler     *parties.Handler
	PermitsHandler     *permits.Handler
	AttendanceHandler  *attendance.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router. Health endpoints and metrics sit outside the
// session, CSRF and rate limit layers.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Readiness, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		mount := func(prefix string, m interface{ MountRoutes(chi.Router) }) {
			r.Route(prefix, m.MountRoutes)
		}
		if params.AuthHandler != nil {
			mount("/auth", params.AuthHandler)
		}
		if params.UsersHandler != nil {
			mount("/users", params.UsersHandler)
		}
		if params.RolesHandler != nil {
			mount("/roles", params.RolesHandler)
		}
		if params.PermissionsHandler != nil {
			mount("/permissions", params.PermissionsHandler)
		}
		if params.ContractsHandler != nil {
			mount("/contracts", params.ContractsHandler)
		}
		if params.PromotersHandler != nil {
			mount("/promoters", params.PromotersHandler)
		}
		if params.PartiesHandler != nil {
			mount("/parties", params.PartiesHandler)
		}
		if params.PermitsHandler != nil {
			mount("/permits", params.PermitsHandler)
		}
		if params.AttendanceHandler != nil {
			mount("/attendance", params.AttendanceHandler)
		}
		if params.JobHandler != nil {
			mount("/jobs", params.JobHandler)
		}
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			httpx.Write(w, httpx.ProblemDetail{Status: http.StatusNotFound, Code: httpx.CodeNotFound})
		})
	})

	return r
}

func readinessHandler(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				out[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		httpx.JSON(w, status, map[string]any{"checks": out})
	}
}
