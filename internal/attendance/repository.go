package attendance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/rbac"
)

const recordColumns = `id, user_id, COALESCE(company_id, 0), check_in_at, check_out_at, worked_minutes,
	latitude, longitude, note`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.UserID, &r.CompanyID, &r.CheckInAt, &r.CheckOutAt, &r.WorkedMinutes,
		&r.Latitude, &r.Longitude, &r.Note)
	return r, err
}

// CheckIn opens a record. The partial unique index on open records turns a
// second check-in into ErrAlreadyCheckedIn.
func (r *Repository) CheckIn(ctx context.Context, rec Record) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (user_id, company_id, check_in_at, latitude, longitude, note)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6)
		RETURNING `+recordColumns,
		rec.UserID, rec.CompanyID, rec.CheckInAt, rec.Latitude, rec.Longitude, rec.Note)
	out, err := scanRecord(row)
	if db.IsCode(err, db.CodeUniqueViolation) {
		return Record{}, ErrAlreadyCheckedIn
	}
	return out, err
}

// CheckOut closes the user's open record at the given time.
func (r *Repository) CheckOut(ctx context.Context, userID int64, at time.Time, note string) (Record, error) {
	var out Record
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		open, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+`
			FROM attendance WHERE user_id = $1 AND check_out_at IS NULL FOR UPDATE`, userID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotCheckedIn
		}
		if err != nil {
			return err
		}
		if note == "" {
			note = open.Note
		}
		out, err = scanRecord(tx.QueryRow(ctx, `
			UPDATE attendance SET check_out_at = $2, worked_minutes = $3, note = $4
			WHERE id = $1
			RETURNING `+recordColumns,
			open.ID, at, WorkedMinutes(open.CheckInAt, at), note))
		return err
	})
	return out, err
}

// List returns one page of records, newest first, and the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Record, int, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Scope == rbac.ScopeOwn {
		cond := "user_id = " + arg(f.UserID)
		if f.CompanyID != 0 {
			cond = "(" + cond + " OR company_id = " + arg(f.CompanyID) + ")"
		}
		where = append(where, cond)
	}
	if f.ForUser > 0 {
		where = append(where, "user_id = "+arg(f.ForUser))
	}
	if f.From != nil {
		where = append(where, "check_in_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "check_in_at < "+arg(*f.To))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, "SELECT "+recordColumns+" FROM attendance"+clause+
		" ORDER BY check_in_at DESC, id DESC LIMIT "+arg(f.Limit)+" OFFSET "+arg(f.Offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
