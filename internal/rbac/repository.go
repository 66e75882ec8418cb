package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contracthub/contracthub/internal/platform/db"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// CatalogStore persists permissions, roles and their attachments.
type CatalogStore interface {
	UpsertPermission(ctx context.Context, perm Permission, displayName, description string) (int64, error)
	UpsertRole(ctx context.Context, name string, category Category, description string) (int64, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	RetireRole(ctx context.Context, roleID int64) error
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
	RolePermissions(ctx context.Context, roleID int64) ([]PermissionRecord, error)
	Counts(ctx context.Context) (Counts, error)
}

// AssignmentStore persists user to role assignments.
type AssignmentStore interface {
	AssignRole(ctx context.Context, userID, roleID int64, companyID *int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
}

// LiveSource computes a user's permissions with a direct join.
type LiveSource interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
}

// ViewSource backs the materialized permission view.
type ViewSource interface {
	RefreshMaterialized(ctx context.Context) error
	LoadMaterialized(ctx context.Context) ([]UserPermissionRow, error)
}

// Store is everything the RBAC service needs from persistence.
type Store interface {
	CatalogStore
	AssignmentStore
	LiveSource
}

// PGStore implements Store and ViewSource on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func mapPGError(err error) error {
	switch {
	case db.IsCode(err, db.CodeForeignKeyViolation):
		return fmt.Errorf("%w: %s", ErrNotFound, db.Constraint(err))
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	default:
		return err
	}
}

// UpsertPermission inserts the permission or refreshes its descriptive metadata.
func (s *PGStore) UpsertPermission(ctx context.Context, perm Permission, displayName, description string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO permissions (resource, action, scope, display_name, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (resource, action, scope)
		DO UPDATE SET display_name = EXCLUDED.display_name, description = EXCLUDED.description, updated_at = NOW()
		RETURNING id`,
		string(perm.Resource), string(perm.Action), perm.Scope.String(), displayName, description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("rbac: upsert permission %s: %w", perm, err)
	}
	return id, nil
}

// UpsertRole inserts a role keyed on name. Upserting a retired role revives it.
func (s *PGStore) UpsertRole(ctx context.Context, name string, category Category, description string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, category, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET category = EXCLUDED.category, description = EXCLUDED.description, retired_at = NULL, updated_at = NOW()
		RETURNING id`, name, string(category), description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("rbac: upsert role %q: %w", name, err)
	}
	return id, nil
}

// AttachPermission links a permission to a role; repeated calls are no-ops.
func (s *PGStore) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

// DetachPermission unlinks a permission from a role.
func (s *PGStore) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// RetireRole marks a role retired. Its permissions stop contributing to any effective set.
func (s *PGStore) RetireRole(ctx context.Context, roleID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE roles SET retired_at = COALESCE(retired_at, NOW()), updated_at = NOW() WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const roleColumns = `r.id, r.name, r.category, r.description, r.retired_at, r.created_at, r.updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role     Role
		category string
		retired  pgtype.Timestamptz
	)
	if err := row.Scan(&role.ID, &role.Name, &category, &role.Description, &retired, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.Category = Category(category)
	if retired.Valid {
		t := retired.Time
		role.RetiredAt = &t
	}
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (s *PGStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id))
	if err != nil {
		return Role{}, mapPGError(err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by category and name.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.category, r.name`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func collectPermissions(rows pgx.Rows) ([]PermissionRecord, error) {
	defer rows.Close()
	var perms []PermissionRecord
	for rows.Next() {
		var rec PermissionRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.DisplayName, &rec.Description); err != nil {
			return nil, err
		}
		perm, err := ParsePermission(rec.Name)
		if err != nil {
			return nil, err
		}
		rec.Permission = perm
		perms = append(perms, rec)
	}
	return perms, rows.Err()
}

// ListPermissions returns the full permission catalog.
func (s *PGStore) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT p.id, p.name, p.display_name, p.description FROM permissions p ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// RolePermissions returns the permissions attached to a role.
func (s *PGStore) RolePermissions(ctx context.Context, roleID int64) ([]PermissionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.display_name, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// Counts reports catalog row counts.
func (s *PGStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM permissions),
			(SELECT COUNT(*) FROM roles),
			(SELECT COUNT(*) FROM role_permissions)`).Scan(&c.Permissions, &c.Roles, &c.Attachments)
	return c, err
}

// AssignRole grants a role to a user. Retired or missing roles yield ErrNotFound.
func (s *PGStore) AssignRole(ctx context.Context, userID, roleID int64, companyID *int64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, company_id)
		SELECT $1, r.id, $3 FROM roles r WHERE r.id = $2 AND r.retired_at IS NULL
		ON CONFLICT (user_id, role_id) DO UPDATE SET company_id = EXCLUDED.company_id`, userID, roleID, companyID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeRole removes a role from a user.
func (s *PGStore) RevokeRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// UserRoles lists the roles assigned to a user, retired ones included.
func (s *PGStore) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+roleColumns+`
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// UserPermissions is the live join behind the materialized view.
func (s *PGStore) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN users u ON u.id = ur.user_id AND u.is_active
		JOIN roles r ON r.id = ur.role_id AND r.retired_at IS NULL
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// RefreshMaterialized rebuilds user_effective_permissions. CONCURRENTLY keeps
// the previous contents visible to readers until the rebuild commits.
func (s *PGStore) RefreshMaterialized(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY user_effective_permissions`); err != nil {
		return fmt.Errorf("rbac: refresh user_effective_permissions: %w", err)
	}
	return nil
}

// LoadMaterialized reads the whole materialized view.
func (s *PGStore) LoadMaterialized(ctx context.Context) ([]UserPermissionRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, permission FROM user_effective_permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserPermissionRow
	for rows.Next() {
		var row UserPermissionRow
		if err := rows.Scan(&row.UserID, &row.Permission); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var (
	_ Store      = (*PGStore)(nil)
	_ ViewSource = (*PGStore)(nil)
)
