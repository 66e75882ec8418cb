package permits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/rbac"
)

const permitColumns = `id, promoter_id, permit_number, issue_date, expiry_date, status,
	owner_id, COALESCE(company_id, 0), created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPermit(row pgx.Row) (Permit, error) {
	var p Permit
	var status string
	err := row.Scan(&p.ID, &p.PromoterID, &p.PermitNumber, &p.IssueDate, &p.ExpiryDate, &status,
		&p.OwnerID, &p.CompanyID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permit{}, ErrNotFound
		}
		return Permit{}, err
	}
	p.Status = Status(status)
	return p, nil
}

// List returns one page of permits and the total matching count, soonest
// expiry first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Permit, int, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Scope == rbac.ScopeOwn {
		cond := "owner_id = " + arg(f.UserID)
		if f.CompanyID != 0 {
			cond = "(" + cond + " OR company_id = " + arg(f.CompanyID) + ")"
		}
		where = append(where, cond)
	}
	if f.PromoterID != 0 {
		where = append(where, "promoter_id = "+arg(f.PromoterID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.ExpiringBefore != nil {
		where = append(where, "status = 'active' AND expiry_date <= "+arg(*f.ExpiringBefore))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM permits"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, "SELECT "+permitColumns+" FROM permits"+clause+
		" ORDER BY expiry_date, id LIMIT "+arg(f.Limit)+" OFFSET "+arg(f.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get fetches one permit.
func (r *Repository) Get(ctx context.Context, id int64) (Permit, error) {
	return scanPermit(r.pool.QueryRow(ctx, "SELECT "+permitColumns+" FROM permits WHERE id = $1", id))
}

// Create inserts a permit.
func (r *Repository) Create(ctx context.Context, p Permit) (Permit, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permits (promoter_id, permit_number, issue_date, expiry_date, status, owner_id, company_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0))
		RETURNING `+permitColumns,
		p.PromoterID, p.PermitNumber, p.IssueDate, p.ExpiryDate, string(p.Status), p.OwnerID, p.CompanyID)
	created, err := scanPermit(row)
	return created, mapWriteError(err)
}

// Update writes the editable fields.
func (r *Repository) Update(ctx context.Context, p Permit) (Permit, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permits SET promoter_id = $2, permit_number = $3, issue_date = $4, expiry_date = $5,
			status = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+permitColumns,
		p.ID, p.PromoterID, p.PermitNumber, p.IssueDate, p.ExpiryDate, string(p.Status))
	updated, err := scanPermit(row)
	return updated, mapWriteError(err)
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsCode(err, db.CodeUniqueViolation):
		return ErrDuplicateNumber
	case db.IsCode(err, db.CodeForeignKeyViolation):
		return fmt.Errorf("%w: promoter does not exist", rbac.ErrInvalidInput)
	default:
		return err
	}
}
