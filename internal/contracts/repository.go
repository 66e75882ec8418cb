package contracts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/platform/httpx"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

const contractColumns = `id, number, title, status, first_party_id, second_party_id, promoter_id,
	owner_id, COALESCE(company_id, 0), start_date, end_date, value_cents, currency,
	COALESCE(document_url, ''), COALESCE(rejection_reason, ''), created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	var status string
	err := row.Scan(&c.ID, &c.Number, &c.Title, &status, &c.FirstPartyID, &c.SecondPartyID, &c.PromoterID,
		&c.OwnerID, &c.CompanyID, &c.StartDate, &c.EndDate, &c.ValueCents, &c.Currency,
		&c.DocumentURL, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, err
	}
	c.Status = Status(status)
	return c, nil
}

// List returns one page of contracts and the total matching count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Contract, int, error) {
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
		where = append(where, "(title ILIKE "+p+" OR number ILIKE "+p+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM contracts"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := "SELECT " + contractColumns + " FROM contracts" + clause +
		" ORDER BY created_at DESC, id DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Get fetches one contract.
func (r *Repository) Get(ctx context.Context, id int64) (Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = $1", id))
}

// Create inserts a draft contract.
func (r *Repository) Create(ctx context.Context, c Contract) (Contract, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO contracts (number, title, status, first_party_id, second_party_id, promoter_id,
			owner_id, company_id, start_date, end_date, value_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0), $9, $10, $11, $12)
		RETURNING `+contractColumns,
		c.Number, c.Title, string(StatusDraft), c.FirstPartyID, c.SecondPartyID, c.PromoterID,
		c.OwnerID, c.CompanyID, c.StartDate, c.EndDate, c.ValueCents, c.Currency)
	created, err := scanContract(row)
	return created, mapWriteError(err)
}

// Update writes the editable fields.
func (r *Repository) Update(ctx context.Context, c Contract) (Contract, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE contracts SET title = $2, first_party_id = $3, second_party_id = $4, promoter_id = $5,
			start_date = $6, end_date = $7, value_cents = $8, currency = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+contractColumns,
		c.ID, c.Title, c.FirstPartyID, c.SecondPartyID, c.PromoterID, c.StartDate, c.EndDate, c.ValueCents, c.Currency)
	updated, err := scanContract(row)
	return updated, mapWriteError(err)
}

// Transition moves a contract from one status to another and records the
// approval entry in the same transaction. It fails with ErrInvalidTransition
// when the stored status is no longer from.
func (r *Repository) Transition(ctx context.Context, t Transition) (Contract, error) {
	var out Contract
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE contracts SET status = $3, rejection_reason = NULLIF($4, ''), updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING `+contractColumns,
			t.ContractID, string(t.From), string(t.To), t.Reason)
		c, err := scanContract(row)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidTransition
		}
		if err != nil {
			return err
		}
		out = c
		return shared.NewApprovalRecorder(tx).Record(ctx, shared.ApprovalLog{
			ContractID: t.ContractID,
			ActorID:    t.ActorID,
			Action:     t.Action,
			Note:       t.Reason,
		})
	})
	return out, err
}

// SetDocument stores the generated document URL.
func (r *Repository) SetDocument(ctx context.Context, id int64, url string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE contracts SET document_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Log appends an approval entry outside a status change.
func (r *Repository) Log(ctx context.Context, entry shared.ApprovalLog) error {
	return shared.NewApprovalRecorder(r.pool).Record(ctx, entry)
}

// History returns the approval log of a contract.
func (r *Repository) History(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	return shared.NewApprovalRecorder(r.pool).List(ctx, id)
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsCode(err, db.CodeForeignKeyViolation):
		return fmt.Errorf("%w: referenced party or promoter does not exist", rbac.ErrInvalidInput)
	case db.IsCode(err, db.CodeCheckViolation):
		return fmt.Errorf("%w: end date precedes start date", rbac.ErrInvalidInput)
	case db.IsCode(err, db.CodeUniqueViolation):
		return fmt.Errorf("%w: contract number taken", httpx.ErrDuplicate)
	default:
		return err
	}
}
