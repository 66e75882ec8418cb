package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// RoleAssigner manages user to role links. *rbac.Service satisfies it.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID, roleID int64, companyID *int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
	UserRoles(ctx context.Context, userID int64) ([]rbac.Role, error)
}

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	roles     RoleAssigner
	refresher rbac.Refresher
	audit     shared.Auditor
	logger    *slog.Logger
}

// NewService builds Service instance. refresher and audit may be nil.
func NewService(repo RepositoryPort, roles RoleAssigner, refresher rbac.Refresher, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, refresher: refresher, audit: audit, logger: logger}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	return s.repo.ListUsers(ctx, filter)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// UserRoles lists a user's roles.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]rbac.Role, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.roles.UserRoles(ctx, userID)
}

// AssignRole grants roleID to userID on behalf of actor.
func (s *Service) AssignRole(ctx context.Context, actor, userID, roleID int64, companyID *int64) error {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.roles.AssignRole(ctx, userID, roleID, companyID); err != nil {
		return err
	}
	meta := map[string]any{"role_id": roleID}
	if companyID != nil {
		meta["company_id"] = *companyID
	}
	s.record(ctx, actor, "user.role.assign", userID, meta)
	return nil
}

// RevokeRole removes roleID from userID on behalf of actor.
func (s *Service) RevokeRole(ctx context.Context, actor, userID, roleID int64) error {
	if err := s.roles.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "user.role.revoke", userID, map[string]any{"role_id": roleID})
	return nil
}

// SetActive toggles the account. Inactive users hold no permissions once the
// view refreshes, and never on the live path.
func (s *Service) SetActive(ctx context.Context, actor, userID int64, active bool) error {
	if actor == userID && !active {
		return fmt.Errorf("%w: cannot deactivate yourself", rbac.ErrInvalidInput)
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return err
	}
	if s.refresher != nil {
		if err := s.refresher.RequestRefresh(ctx); err != nil {
			s.logger.Warn("rbac refresh after user status change", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	s.record(ctx, actor, "user.status", userID, map[string]any{"active": active})
	return nil
}

func (s *Service) record(ctx context.Context, actor int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
