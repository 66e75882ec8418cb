package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/rbac/rbactest"
	"github.com/contracthub/contracthub/internal/shared"
)

type memRepo struct {
	users map[int64]User
}

func (m *memRepo) ListUsers(_ context.Context, f ListFilter) ([]User, int, error) {
	var out []User
	for id := int64(1); id <= int64(len(m.users)); id++ {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		if f.CompanyID > 0 && u.CompanyID != f.CompanyID {
			continue
		}
		out = append(out, u)
	}
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

type memRoles struct {
	links map[int64]map[int64]*int64
	roles map[int64]rbac.Role
}

func (m *memRoles) AssignRole(_ context.Context, userID, roleID int64, companyID *int64) error {
	role, ok := m.roles[roleID]
	if !ok || role.Retired() {
		return rbac.ErrNotFound
	}
	if m.links[userID] == nil {
		m.links[userID] = map[int64]*int64{}
	}
	m.links[userID][roleID] = companyID
	return nil
}

func (m *memRoles) RevokeRole(_ context.Context, userID, roleID int64) error {
	delete(m.links[userID], roleID)
	return nil
}

func (m *memRoles) UserRoles(_ context.Context, userID int64) ([]rbac.Role, error) {
	var out []rbac.Role
	for roleID := range m.links[userID] {
		out = append(out, m.roles[roleID])
	}
	return out, nil
}

type memAudit struct{ logs []shared.AuditLog }

func (m *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type fixture struct {
	router    http.Handler
	repo      *memRepo
	roles     *memRoles
	audit     *memAudit
	refreshes int
}

const (
	adminID   = int64(1)
	managerID = int64(2)
	memberID  = int64(3)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: &memRepo{users: map[int64]User{
			adminID:   {ID: adminID, Email: "admin@test.local", IsActive: true},
			managerID: {ID: managerID, Email: "manager@test.local", CompanyID: 9, IsActive: true},
			memberID:  {ID: memberID, Email: "member@test.local", CompanyID: 9, IsActive: true},
		}},
		roles: &memRoles{
			links: map[int64]map[int64]*int64{},
			roles: map[int64]rbac.Role{
				10: {ID: 10, Name: "Provider Team Member", Category: rbac.CategoryProvider},
			},
		},
		audit: &memAudit{},
	}
	src := rbactest.Source{}.
		Grant(adminID, "user:read:all", "user:update:all", "user:assign_role:all").
		Grant(managerID, "user:read:own")
	refresher := rbac.RefresherFunc(func(context.Context) error {
		f.refreshes++
		return nil
	})
	svc := NewService(f.repo, f.roles, refresher, f.audit, nil)
	r := chi.NewRouter()
	r.Route("/users", NewHandler(nil, svc, rbactest.Guard(src)).MountRoutes)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID > 0 {
		rbactest.As(req, userID, 0)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestListUsersRequiresReadAll(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodGet, "/users/", "", 0)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(http.MethodGet, "/users/", "", managerID)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "user:read:all")

	res = f.do(http.MethodGet, "/users/?per_page=2", "", adminID)
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Users      []User            `json:"users"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Len(t, body.Users, 2)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodGet, "/users/3", "", adminID)
	require.Equal(t, http.StatusOK, res.Code)
	var user User
	require.NoError(t, json.NewDecoder(res.Body).Decode(&user))
	assert.Equal(t, "member@test.local", user.Email)

	res = f.do(http.MethodGet, "/users/404", "", adminID)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = f.do(http.MethodGet, "/users/abc", "", adminID)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAssignAndRevokeRole(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodPost, "/users/3/roles", `{"role_id":10,"company_id":9}`, adminID)
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	require.Contains(t, f.roles.links[memberID], int64(10))
	assert.Equal(t, int64(9), *f.roles.links[memberID][10])

	res = f.do(http.MethodGet, "/users/3/roles", "", adminID)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Provider Team Member")

	res = f.do(http.MethodDelete, "/users/3/roles/10", "", adminID)
	require.Equal(t, http.StatusNoContent, res.Code)
	assert.Empty(t, f.roles.links[memberID])

	require.Len(t, f.audit.logs, 2)
	assert.Equal(t, "user.role.assign", f.audit.logs[0].Action)
	assert.Equal(t, adminID, f.audit.logs[0].ActorID)
	assert.Equal(t, "user.role.revoke", f.audit.logs[1].Action)
}

func TestAssignRoleErrors(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodPost, "/users/3/roles", `{"role_id":99}`, adminID)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = f.do(http.MethodPost, "/users/404/roles", `{"role_id":10}`, adminID)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = f.do(http.MethodPost, "/users/3/roles", `{"role_id":0}`, adminID)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(http.MethodPost, "/users/3/roles", `{"role_id":10}`, managerID)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, f.audit.logs)
}

func TestSetStatusRefreshesView(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodPut, "/users/3/status", `{"active":false}`, adminID)
	require.Equal(t, http.StatusNoContent, res.Code)
	assert.False(t, f.repo.users[memberID].IsActive)
	assert.Equal(t, 1, f.refreshes)

	res = f.do(http.MethodPut, "/users/1/status", `{"active":false}`, adminID)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(http.MethodPut, "/users/3/status", `{}`, adminID)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestServiceAuditFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.roles, nil, failingAudit{}, nil)
	require.NoError(t, svc.AssignRole(context.Background(), adminID, memberID, 10, nil))
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, shared.AuditLog) error { return errors.New("audit down") }
