package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidInput marks caller mistakes such as blank role names.
var ErrInvalidInput = errors.New("rbac: invalid input")

// Refresher rebuilds the materialized permission view after a mutation.
type Refresher interface {
	RequestRefresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

// RequestRefresh calls f.
func (f RefresherFunc) RequestRefresh(ctx context.Context) error { return f(ctx) }

// RoleInput carries the editable fields of a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Category    string `json:"category" validate:"required,oneof=client provider admin"`
	Description string `json:"description" validate:"max=500"`
}

// RoleDetail is a role together with its attached permissions.
type RoleDetail struct {
	Role
	Permissions []PermissionRecord `json:"permissions"`
}

// Service orchestrates RBAC operations.
type Service struct {
	store     Store
	refresher Refresher
	logger    *slog.Logger
}

// NewService constructs a Service. A nil refresher disables view refreshes.
func NewService(store Store, refresher Refresher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, refresher: refresher, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role with its permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleDetail, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	perms, err := s.store.RolePermissions(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	return RoleDetail{Role: role, Permissions: perms}, nil
}

// UpsertRole creates the role or updates it by name.
func (s *Service) UpsertRole(ctx context.Context, input RoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidInput)
	}
	category, err := ParseCategory(input.Category)
	if err != nil {
		return Role{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	id, err := s.store.UpsertRole(ctx, name, category, strings.TrimSpace(input.Description))
	if err != nil {
		return Role{}, err
	}
	// A retired role may have been revived.
	s.afterMutation(ctx, "upsert_role")
	return s.store.GetRole(ctx, id)
}

// RetireRole retires a role. Assignments are kept but stop granting anything.
func (s *Service) RetireRole(ctx context.Context, id int64) error {
	if err := s.store.RetireRole(ctx, id); err != nil {
		return err
	}
	s.afterMutation(ctx, "retire_role")
	return nil
}

// ListPermissions returns the catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	return s.store.ListPermissions(ctx)
}

// UpsertPermission registers perm in the catalog and returns its id.
func (s *Service) UpsertPermission(ctx context.Context, perm Permission, displayName, description string) (int64, error) {
	if err := perm.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.store.UpsertPermission(ctx, perm, strings.TrimSpace(displayName), strings.TrimSpace(description))
}

// AttachPermission grants a catalog permission to a role.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.afterMutation(ctx, "attach_permission")
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.store.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.afterMutation(ctx, "detach_permission")
	return nil
}

// AssignRole grants a role to a user, optionally bound to a company.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64, companyID *int64) error {
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("%w: user and role ids required", ErrInvalidInput)
	}
	if err := s.store.AssignRole(ctx, userID, roleID, companyID); err != nil {
		return err
	}
	s.afterMutation(ctx, "assign_role")
	return nil
}

// RevokeRole removes a role from a user.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID int64) error {
	if err := s.store.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.afterMutation(ctx, "revoke_role")
	return nil
}

// UserRoles lists a user's roles.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.store.UserRoles(ctx, userID)
}

// LivePermissions computes a user's effective set straight from the role tables.
func (s *Service) LivePermissions(ctx context.Context, userID int64) (Set, error) {
	names, err := s.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return parseSet(s.logger, userID, names), nil
}

// Counts reports catalog sizes.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return s.store.Counts(ctx)
}

// Refresh rebuilds the materialized view immediately.
func (s *Service) Refresh(ctx context.Context) error {
	if s.refresher == nil {
		return nil
	}
	return s.refresher.RequestRefresh(ctx)
}

func (s *Service) afterMutation(ctx context.Context, op string) {
	if s.refresher == nil {
		return
	}
	// The mutation already committed. Until the scheduled refresh succeeds,
	// users present in the current snapshot keep their old set for at most
	// the view's staleness bound; users absent from it fall back to the live join.
	if err := s.refresher.RequestRefresh(ctx); err != nil {
		s.logger.Warn("rbac refresh after mutation", slog.String("op", op), slog.Any("error", err))
	}
}

// parseSet converts stored names into a Set, skipping rows that no longer parse.
func parseSet(logger *slog.Logger, userID int64, names []string) Set {
	set := make(Set, len(names))
	for _, name := range names {
		perm, err := ParsePermission(name)
		if err != nil {
			logger.Warn("rbac skip malformed permission", slog.Int64("user_id", userID), slog.String("permission", name))
			continue
		}
		set.Add(perm)
	}
	return set
}
