package roles

import (
	"context"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
)

// Member is a user holding a role.
type Member struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	CompanyID  *int64    `json:"company_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Registry is the role registry. *rbac.Service satisfies it.
type Registry interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.RoleDetail, error)
	UpsertRole(ctx context.Context, input rbac.RoleInput) (rbac.Role, error)
	RetireRole(ctx context.Context, id int64) error
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
}
