// Package rbactest provides fixed-permission guards for handler tests.
package rbactest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/contracthub/contracthub/internal/rbac"
)

// Headers read by HeaderIdentity.
const (
	UserHeader    = "X-Test-User"
	CompanyHeader = "X-Test-Company"
)

// Source serves fixed permission sets per user. Unknown users hold nothing.
type Source map[int64]rbac.Set

// EffectivePermissions implements rbac.PermissionSource.
func (s Source) EffectivePermissions(_ context.Context, userID int64) (rbac.Set, error) {
	if set, ok := s[userID]; ok {
		return set, nil
	}
	return rbac.NewSet(), nil
}

// Grant adds permission names to userID, panicking on malformed names.
func (s Source) Grant(userID int64, names ...string) Source {
	set, ok := s[userID]
	if !ok {
		set = rbac.NewSet()
		s[userID] = set
	}
	for _, name := range names {
		set.Add(rbac.MustParse(name))
	}
	return s
}

// HeaderIdentity reads the principal from UserHeader and CompanyHeader.
func HeaderIdentity(r *http.Request) (rbac.Principal, bool) {
	id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
	if err != nil || id <= 0 {
		return rbac.Principal{}, false
	}
	company, _ := strconv.ParseInt(r.Header.Get(CompanyHeader), 10, 64)
	return rbac.Principal{UserID: id, CompanyID: company}, true
}

// Guard returns a guard over src with header identity.
func Guard(src rbac.PermissionSource) rbac.Guard {
	return rbac.Guard{Source: src, Identity: HeaderIdentity}
}

// As marks req as sent by userID in companyID.
func As(req *http.Request, userID, companyID int64) *http.Request {
	req.Header.Set(UserHeader, strconv.FormatInt(userID, 10))
	if companyID > 0 {
		req.Header.Set(CompanyHeader, strconv.FormatInt(companyID, 10))
	}
	return req
}
