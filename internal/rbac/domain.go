package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Category groups roles for display. It never affects evaluation.
type Category string

// Role categories.
const (
	CategoryClient   Category = "client"
	CategoryProvider Category = "provider"
	CategoryAdmin    Category = "admin"
)

// ParseCategory validates a category name.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.TrimSpace(strings.ToLower(raw)))
	switch c {
	case CategoryClient, CategoryProvider, CategoryAdmin:
		return c, nil
	default:
		return "", fmt.Errorf("rbac: unknown role category %q", raw)
	}
}

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Retired reports whether the role has been retired.
func (r Role) Retired() bool {
	return r.RetiredAt != nil
}

// PermissionRecord is a stored permission row.
type PermissionRecord struct {
	ID          int64      `json:"id"`
	Permission  Permission `json:"-"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description"`
}

// UserRole links a user to a role, optionally within a company.
type UserRole struct {
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	CompanyID *int64    `json:"company_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPermissionRow is one row of the user to permission mapping.
type UserPermissionRow struct {
	UserID     int64
	Permission string
}

// Counts summarises catalog sizes.
type Counts struct {
	Permissions int `json:"permissions"`
	Roles       int `json:"roles"`
	Attachments int `json:"attachments"`
}
