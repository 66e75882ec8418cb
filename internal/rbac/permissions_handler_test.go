package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub/contracthub/internal/platform/httpx"
)

func permissionsRouter(t *testing.T, callerID int64) (http.Handler, *MaterializedView) {
	t.Helper()
	store := seededStore(t, 2, Own(ResourceBooking, ActionCreate))
	view := NewMaterializedView(store, nil)
	guard := Guard{
		Source: stubSource{sets: map[int64]Set{
			1: NewSet(All(ResourcePermission, ActionRead), All(ResourceSystem, ActionManage)),
		}},
		Identity: fixedIdentity(callerID),
	}
	r := chi.NewRouter()
	r.Route("/permissions", NewPermissionsHandler(nil, NewService(store, view, nil), view, guard).MountRoutes)
	return r, view
}

func call(t *testing.T, h http.Handler, method, path string) (int, map[string]any) {
	t.Helper()
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(method, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return res.Code, body
}

func TestPermissionsRefreshAndViewStatus(t *testing.T) {
	router, view := permissionsRouter(t, 1)

	code, body := call(t, router, http.MethodGet, "/permissions/view")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["stale"])
	assert.NotContains(t, body, "built_at")

	code, body = call(t, router, http.MethodPost, "/permissions/refresh")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["refreshed"])

	code, body = call(t, router, http.MethodGet, "/permissions/view")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["stale"])
	assert.Contains(t, body, "built_at")

	set, ok := view.Lookup(2)
	require.True(t, ok)
	assert.True(t, set.Contains(Own(ResourceBooking, ActionCreate)))
}

func TestPermissionsList(t *testing.T) {
	router, _ := permissionsRouter(t, 1)

	code, body := call(t, router, http.MethodGet, "/permissions")
	require.Equal(t, http.StatusOK, code)
	perms, ok := body["permissions"].([]any)
	require.True(t, ok)
	require.Len(t, perms, 1)
	first := perms[0].(map[string]any)
	assert.Equal(t, "booking:create:own", first["name"])
	assert.Equal(t, "own", first["scope"])
}

func TestPermissionsRefreshRequiresSystemManage(t *testing.T) {
	router, view := permissionsRouter(t, 3)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/permissions/refresh", nil))
	require.Equal(t, http.StatusForbidden, res.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &problem))
	assert.Equal(t, []string{"system:manage:all"}, problem.Missing)
	assert.True(t, view.BuiltAt().IsZero())
}
