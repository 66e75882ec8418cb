package promoters

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

const promoterColumns = `id, full_name, national_id, passport_number, nationality, mobile, employer_id,
	owner_id, COALESCE(company_id, 0), status, COALESCE(id_card_key, ''), COALESCE(passport_key, ''),
	created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPromoter(row pgx.Row) (Promoter, error) {
	var p Promoter
	var status string
	err := row.Scan(&p.ID, &p.FullName, &p.NationalID, &p.PassportNumber, &p.Nationality, &p.Mobile,
		&p.EmployerID, &p.OwnerID, &p.CompanyID, &status, &p.IDCardKey, &p.PassportKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Promoter{}, ErrNotFound
		}
		return Promoter{}, err
	}
	p.Status = Status(status)
	return p, nil
}

// List returns one page of promoters and the total matching count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Promoter, int, error) {
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
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		where = append(where, "(full_name ILIKE "+p+" OR national_id ILIKE "+p+" OR mobile ILIKE "+p+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM promoters"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, "SELECT "+promoterColumns+" FROM promoters"+clause+
		" ORDER BY full_name, id LIMIT "+arg(f.Limit)+" OFFSET "+arg(f.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Promoter
	for rows.Next() {
		p, err := scanPromoter(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get fetches one promoter.
func (r *Repository) Get(ctx context.Context, id int64) (Promoter, error) {
	return scanPromoter(r.pool.QueryRow(ctx, "SELECT "+promoterColumns+" FROM promoters WHERE id = $1", id))
}

// Create inserts a promoter.
func (r *Repository) Create(ctx context.Context, p Promoter) (Promoter, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO promoters (full_name, national_id, passport_number, nationality, mobile, employer_id,
			owner_id, company_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0), $9)
		RETURNING `+promoterColumns,
		p.FullName, p.NationalID, p.PassportNumber, p.Nationality, p.Mobile, p.EmployerID,
		p.OwnerID, p.CompanyID, string(p.Status))
	created, err := scanPromoter(row)
	return created, mapWriteError(err)
}

// Update writes the editable fields.
func (r *Repository) Update(ctx context.Context, p Promoter) (Promoter, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE promoters SET full_name = $2, national_id = $3, passport_number = $4, nationality = $5,
			mobile = $6, employer_id = $7, status = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+promoterColumns,
		p.ID, p.FullName, p.NationalID, p.PassportNumber, p.Nationality, p.Mobile, p.EmployerID, string(p.Status))
	updated, err := scanPromoter(row)
	return updated, mapWriteError(err)
}

// SetDocument records the object key of an uploaded document.
func (r *Repository) SetDocument(ctx context.Context, id int64, kind DocumentKind, key string) error {
	column := "id_card_key"
	if kind == DocumentPassport {
		column = "passport_key"
	}
	tag, err := r.pool.Exec(ctx, "UPDATE promoters SET "+column+" = $2, updated_at = NOW() WHERE id = $1", id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsCode(err, db.CodeUniqueViolation):
		return ErrDuplicateID
	case db.IsCode(err, db.CodeForeignKeyViolation):
		return fmt.Errorf("%w: employer does not exist", rbac.ErrInvalidInput)
	default:
		return err
	}
}
