package permits

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracthub/contracthub/internal/promoters"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/rbac/rbactest"
)

type memStore struct {
	permits map[int64]Permit
	nextID  int64
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]Permit, int, error) {
	var out []Permit
	for id := int64(1); id <= m.nextID; id++ {
		p, ok := m.permits[id]
		if !ok {
			continue
		}
		if f.Scope == rbac.ScopeOwn && p.OwnerID != f.UserID && (f.CompanyID == 0 || p.CompanyID != f.CompanyID) {
			continue
		}
		if f.PromoterID != 0 && p.PromoterID != f.PromoterID {
			continue
		}
		if f.ExpiringBefore != nil && (p.Status != StatusActive || p.ExpiryDate.After(*f.ExpiringBefore)) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memStore) Get(_ context.Context, id int64) (Permit, error) {
	p, ok := m.permits[id]
	if !ok {
		return Permit{}, ErrNotFound
	}
	return p, nil
}

func (m *memStore) Create(_ context.Context, p Permit) (Permit, error) {
	for _, existing := range m.permits {
		if existing.PermitNumber == p.PermitNumber {
			return Permit{}, ErrDuplicateNumber
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.permits[p.ID] = p
	return p, nil
}

func (m *memStore) Update(_ context.Context, p Permit) (Permit, error) {
	m.permits[p.ID] = p
	return p, nil
}

type promoterStub map[int64]promoters.Promoter

func (s promoterStub) Get(_ context.Context, id int64) (promoters.Promoter, error) {
	p, ok := s[id]
	if !ok {
		return promoters.Promoter{}, promoters.ErrNotFound
	}
	return p, nil
}

const (
	adminID   = int64(1)
	managerID = int64(2)
	staffID   = int64(5)
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newRouter(t *testing.T) (http.Handler, *memStore) {
	t.Helper()
	store := &memStore{permits: map[int64]Permit{
		1: {ID: 1, PromoterID: 10, PermitNumber: "WP1", IssueDate: day("2025-12-01"), ExpiryDate: day("2026-11-30"),
			Status: StatusActive, OwnerID: managerID, CompanyID: 3},
		2: {ID: 2, PromoterID: 20, PermitNumber: "WP2", IssueDate: day("2025-02-01"), ExpiryDate: day("2026-01-31"),
			Status: StatusActive, OwnerID: adminID, CompanyID: 8},
		3: {ID: 3, PromoterID: 20, PermitNumber: "WP3", IssueDate: day("2026-07-01"), ExpiryDate: day("2027-06-30"),
			Status: StatusActive, OwnerID: adminID, CompanyID: 8},
	}, nextID: 3}
	people := promoterStub{
		10: {ID: 10, FullName: "Amina Said", OwnerID: managerID, CompanyID: 3},
		20: {ID: 20, FullName: "Rashid Ali", OwnerID: adminID, CompanyID: 8},
	}
	src := rbactest.Source{}.
		Grant(managerID, "permit:read:own", "permit:create:own", "permit:update:own", "promoter:read:own").
		Grant(staffID, "permit:read:own", "promoter:read:own").
		Grant(adminID, "permit:read:all", "permit:create:all", "permit:update:all", "promoter:read:all")
	svc := NewService(store, people, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/permits", NewHandler(nil, svc, rbactest.Guard(src)).MountRoutes)
	return r, store
}

func do(h http.Handler, req *http.Request, user, company int64) *httptest.ResponseRecorder {
	rbactest.As(req, user, company)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func listIDs(t *testing.T, res *httptest.ResponseRecorder) map[int64]Status {
	t.Helper()
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var body struct {
		Permits []Permit `json:"permits"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	out := map[int64]Status{}
	for _, p := range body.Permits {
		out[p.ID] = p.Status
	}
	return out
}

func TestListScopedAndReportsExpiry(t *testing.T) {
	router, _ := newRouter(t)

	got := listIDs(t, do(router, httptest.NewRequest(http.MethodGet, "/permits/", nil), staffID, 3))
	assert.Equal(t, map[int64]Status{1: StatusActive}, got)

	got = listIDs(t, do(router, httptest.NewRequest(http.MethodGet, "/permits/", nil), adminID, 0))
	assert.Equal(t, map[int64]Status{1: StatusActive, 2: StatusExpired, 3: StatusActive}, got)

	got = listIDs(t, do(router, httptest.NewRequest(http.MethodGet, "/permits/?expiring_within=60", nil), adminID, 0))
	assert.Equal(t, map[int64]Status{1: StatusActive, 2: StatusExpired}, got)

	got = listIDs(t, do(router, httptest.NewRequest(http.MethodGet, "/permits/?promoter_id=20", nil), adminID, 0))
	assert.Len(t, got, 2)

	res := do(router, httptest.NewRequest(http.MethodGet, "/permits/?expiring_within=400", nil), adminID, 0)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGetChecksOwnership(t *testing.T) {
	router, _ := newRouter(t)

	res := do(router, httptest.NewRequest(http.MethodGet, "/permits/2", nil), staffID, 3)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "permit:read:all")

	res = do(router, httptest.NewRequest(http.MethodGet, "/permits/2", nil), adminID, 0)
	require.Equal(t, http.StatusOK, res.Code)
	var p Permit
	require.NoError(t, json.NewDecoder(res.Body).Decode(&p))
	assert.Equal(t, StatusExpired, p.Status)

	res = do(router, httptest.NewRequest(http.MethodGet, "/permits/42", nil), adminID, 0)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestCreateResolvesPromoterScope(t *testing.T) {
	router, _ := newRouter(t)
	body := func(promoterID, number, issue, expiry string) *strings.Reader {
		return strings.NewReader(`{"promoter_id":` + promoterID + `,"permit_number":"` + number +
			`","issue_date":"` + issue + `T00:00:00Z","expiry_date":"` + expiry + `T00:00:00Z"}`)
	}

	res := do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("10", "wp9", "2026-10-01", "2027-09-30")), managerID, 3)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var p Permit
	require.NoError(t, json.NewDecoder(res.Body).Decode(&p))
	assert.Equal(t, "WP9", p.PermitNumber)
	assert.Equal(t, managerID, p.OwnerID)
	assert.Equal(t, int64(3), p.CompanyID)
	assert.Equal(t, StatusActive, p.Status)

	res = do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("20", "WP10", "2026-10-01", "2027-09-30")), managerID, 3)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "promoter:read:all")

	res = do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("20", "WP10", "2026-10-01", "2027-09-30")), adminID, 0)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	require.NoError(t, json.NewDecoder(res.Body).Decode(&p))
	assert.Equal(t, int64(8), p.CompanyID)

	res = do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("10", "WP11", "2026-10-01", "2026-09-30")), managerID, 3)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("99", "WP12", "2026-10-01", "2027-09-30")), adminID, 0)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("10", "WP1", "2026-10-01", "2027-09-30")), managerID, 3)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = do(router, httptest.NewRequest(http.MethodPost, "/permits/", body("10", "WP13", "2026-10-01", "2027-09-30")), staffID, 3)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "permit:create:own")
}

func TestUpdateChecksPermitScope(t *testing.T) {
	router, store := newRouter(t)

	res := do(router, httptest.NewRequest(http.MethodPut, "/permits/2", strings.NewReader(
		`{"promoter_id":20,"permit_number":"WP2","issue_date":"2025-02-01T00:00:00Z","expiry_date":"2027-01-31T00:00:00Z"}`)), managerID, 3)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "permit:update:all")
	assert.Equal(t, day("2026-01-31"), store.permits[2].ExpiryDate)

	res = do(router, httptest.NewRequest(http.MethodPut, "/permits/1", strings.NewReader(
		`{"promoter_id":20,"permit_number":"WP1","issue_date":"2025-12-01T00:00:00Z","expiry_date":"2026-11-30T00:00:00Z"}`)), managerID, 3)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, int64(10), store.permits[1].PromoterID)

	res = do(router, httptest.NewRequest(http.MethodPut, "/permits/1", strings.NewReader(
		`{"promoter_id":10,"permit_number":"WP1","issue_date":"2025-12-01T00:00:00Z","expiry_date":"2026-11-30T00:00:00Z","status":"cancelled"}`)), managerID, 3)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, StatusCancelled, store.permits[1].Status)
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)

	p := Permit{Status: StatusActive, ExpiryDate: day("2026-10-18")}
	assert.Equal(t, StatusActive, p.Effective(now))

	p.ExpiryDate = day("2026-10-17")
	assert.Equal(t, StatusExpired, p.Effective(now))

	p.Status = StatusCancelled
	assert.Equal(t, StatusCancelled, p.Effective(now))
}
