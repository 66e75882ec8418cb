package roles

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Members(ctx context.Context, roleID int64) ([]Member, error)
}

// Service handles role business logic.
type Service struct {
	registry Registry
	repo     RepositoryPort
	audit    shared.Auditor
	logger   *slog.Logger
}

// NewService builds Service instance. audit may be nil.
func NewService(registry Registry, repo RepositoryPort, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, repo: repo, audit: audit, logger: logger}
}

// ListRoles returns all roles, retired ones included.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.registry.ListRoles(ctx)
}

// GetRole returns a role with its permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (rbac.RoleDetail, error) {
	return s.registry.GetRole(ctx, id)
}

// Members lists the users holding a role.
func (s *Service) Members(ctx context.Context, id int64) ([]Member, error) {
	if _, err := s.registry.GetRole(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, id)
}

// SaveRole creates or updates a role by name.
func (s *Service) SaveRole(ctx context.Context, actor int64, input rbac.RoleInput) (rbac.Role, error) {
	role, err := s.registry.UpsertRole(ctx, input)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actor, "role.save", role.ID, map[string]any{"name": role.Name, "category": role.Category})
	return role, nil
}

// RetireRole retires a role.
func (s *Service) RetireRole(ctx context.Context, actor, id int64) error {
	if err := s.registry.RetireRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "role.retire", id, nil)
	return nil
}

// AttachPermission grants a permission to a role.
func (s *Service) AttachPermission(ctx context.Context, actor, roleID, permissionID int64) error {
	if err := s.registry.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(ctx, actor, "role.permission.attach", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Service) DetachPermission(ctx context.Context, actor, roleID, permissionID int64) error {
	if err := s.registry.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.record(ctx, actor, "role.permission.detach", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

func (s *Service) record(ctx context.Context, actor int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit role change", slog.String("action", action), slog.Any("error", err))
	}
}
