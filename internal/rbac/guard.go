package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/shared"
)

// IdentityFunc extracts the authenticated principal from a request.
type IdentityFunc func(r *http.Request) (Principal, bool)

// SessionIdentity reads the principal from the request session.
func SessionIdentity(r *http.Request) (Principal, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Principal{}, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return Principal{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, false
	}
	return Principal{UserID: id, CompanyID: sess.Company()}, true
}

// Guard wires RBAC authorization into HTTP handlers.
type Guard struct {
	Source   PermissionSource
	Identity IdentityFunc
	Logger   *slog.Logger
	Metrics  *Metrics
}

// RequireAny passes when the caller holds at least one of perms.
func (g Guard) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return g.Require(AnyOf(perms...))
}

// RequireAll passes when the caller holds every one of perms.
func (g Guard) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return g.Require(AllOf(perms...))
}

// Require returns middleware enforcing req.
func (g Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.WithRBAC(req, next.ServeHTTP)
	}
}

// WithRBAC wraps a single handler with req.
func (g Guard) WithRBAC(req Requirement, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant, err := g.Authorize(r, req)
		if err != nil {
			g.reject(w, r, req, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithGrant(r.Context(), grant)))
	})
}

// Authorize evaluates req for the request's caller. The error is
// ErrUnauthenticated, a *DeniedError, or wraps ErrEvaluation.
func (g Guard) Authorize(r *http.Request, req Requirement) (Grant, error) {
	principal, ok := g.identity()(r)
	if !ok {
		g.Metrics.observeDecision(OutcomeUnauthenticated, req.Mode)
		return Grant{}, ErrUnauthenticated
	}
	set, err := g.Evaluate(r.Context(), principal, req)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Principal: principal, Permissions: set}, nil
}

// Evaluate loads the principal's set and checks req against it. It is the
// non-HTTP entry point used by the CLI and background jobs.
func (g Guard) Evaluate(ctx context.Context, principal Principal, req Requirement) (Set, error) {
	if len(req.Permissions) == 0 {
		g.Metrics.observeDecision(OutcomeUndeclared, req.Mode)
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, ErrEmptyRequirement)
	}
	if g.Source == nil {
		g.Metrics.observeDecision(OutcomeError, req.Mode)
		return nil, fmt.Errorf("%w: no permission source", ErrEvaluation)
	}
	set, err := g.Source.EffectivePermissions(ctx, principal.UserID)
	if err != nil {
		g.Metrics.observeDecision(OutcomeError, req.Mode)
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	allowed, missing, err := req.Check(set)
	if err != nil {
		g.Metrics.observeDecision(OutcomeError, req.Mode)
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	if !allowed {
		g.Metrics.observeDecision(OutcomeDenied, req.Mode)
		g.logger().Warn("rbac denied",
			slog.Int64("user_id", principal.UserID),
			slog.String("mode", req.Mode.String()),
			slog.Any("required", Strings(req.Permissions)),
			slog.Int("effective_count", set.Len()))
		return set, &DeniedError{Mode: req.Mode, Missing: missing}
	}
	g.Metrics.observeDecision(OutcomeAllowed, req.Mode)
	return set, nil
}

func (g Guard) reject(w http.ResponseWriter, r *http.Request, req Requirement, err error) {
	var denied *DeniedError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.Write(w, httpx.ProblemDetail{
			Status: http.StatusUnauthorized,
			Code:   httpx.CodeUnauthenticated,
			Detail: "authentication required",
		})
	case errors.As(err, &denied):
		httpx.Write(w, httpx.ProblemDetail{
			Status:  http.StatusForbidden,
			Code:    httpx.CodePermissionDenied,
			Detail:  "missing required permission",
			Missing: Strings(denied.Missing),
		})
	case errors.Is(err, ErrEmptyRequirement):
		g.logger().Error("rbac endpoint without permissions", slog.String("path", r.URL.Path))
		httpx.Write(w, httpx.ProblemDetail{
			Status: http.StatusForbidden,
			Code:   httpx.CodeNoPermissionDeclared,
			Detail: "endpoint declares no required permission",
		})
	default:
		principal, _ := g.identity()(r)
		g.logger().Error("rbac evaluation failed",
			slog.Int64("user_id", principal.UserID),
			slog.String("path", r.URL.Path),
			slog.Any("required", Strings(req.Permissions)),
			slog.Any("error", err))
		httpx.Write(w, httpx.ProblemDetail{
			Status:  http.StatusForbidden,
			Code:    httpx.CodeAuthorizationUnavailable,
			Detail:  "permissions could not be evaluated",
			Missing: Strings(req.Permissions),
		})
	}
}

func (g Guard) identity() IdentityFunc {
	if g.Identity != nil {
		return g.Identity
	}
	return SessionIdentity
}

func (g Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
