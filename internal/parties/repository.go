package parties

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/rbac"
)

const partyColumns = `id, name, kind, cr_number, COALESCE(owner_id, 0), COALESCE(company_id, 0), created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	var kind string
	err := row.Scan(&p.ID, &p.Name, &kind, &p.CRNumber, &p.OwnerID, &p.CompanyID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, ErrNotFound
		}
		return Party{}, err
	}
	p.Kind = Kind(kind)
	return p, nil
}

// List returns one page of parties and the total matching count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Party, int, error) {
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
	if f.Kind != "" {
		where = append(where, "kind = "+arg(string(f.Kind)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		where = append(where, "(name ILIKE "+p+" OR cr_number ILIKE "+p+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM parties"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, "SELECT "+partyColumns+" FROM parties"+clause+
		" ORDER BY name, id LIMIT "+arg(f.Limit)+" OFFSET "+arg(f.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get fetches one party.
func (r *Repository) Get(ctx context.Context, id int64) (Party, error) {
	return scanParty(r.pool.QueryRow(ctx, "SELECT "+partyColumns+" FROM parties WHERE id = $1", id))
}

// Create inserts a party.
func (r *Repository) Create(ctx context.Context, p Party) (Party, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO parties (name, kind, cr_number, owner_id, company_id)
		VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, 0))
		RETURNING `+partyColumns,
		p.Name, string(p.Kind), p.CRNumber, p.OwnerID, p.CompanyID)
	created, err := scanParty(row)
	return created, mapWriteError(err)
}

// Update writes the editable fields.
func (r *Repository) Update(ctx context.Context, p Party) (Party, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE parties SET name = $2, kind = $3, cr_number = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+partyColumns,
		p.ID, p.Name, string(p.Kind), p.CRNumber)
	updated, err := scanParty(row)
	return updated, mapWriteError(err)
}

func mapWriteError(err error) error {
	if db.IsCode(err, db.CodeUniqueViolation) {
		return ErrDuplicateCR
	}
	return err
}
