// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Problem codes shared by handlers and the authorization guard.
const (
	CodeUnauthenticated          = "unauthenticated"
	CodePermissionDenied         = "permission_denied"
	CodeAuthorizationUnavailable = "authorization_unavailable"
	CodeNoPermissionDeclared     = "no_permission_declared"
	CodeValidation               = "validation_failed"
	CodeNotFound                 = "not_found"
	CodeConflict                 = "conflict"
	CodeCSRFFailed               = "csrf_failed"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Write(w, ProblemDetail{Status: http.StatusNotFound, Title: "Not Found", Code: CodeNotFound, Detail: err.Error()})
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		Write(w, ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Code: CodeConflict, Detail: err.Error()})
	case errors.Is(err, ErrValidation):
		Write(w, ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Code: CodeValidation, Detail: err.Error()})
	case errors.Is(err, ErrForbidden):
		Write(w, ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Code: CodePermissionDenied, Detail: err.Error()})
	case errors.Is(err, ErrUnauthorized):
		Write(w, ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Code: CodeUnauthenticated, Detail: err.Error()})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
