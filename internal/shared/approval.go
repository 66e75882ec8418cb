package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ApprovalAction enumerates contract approval log actions.
type ApprovalAction string

const (
	ApprovalSubmit   ApprovalAction = "SUBMIT"
	ApprovalApprove  ApprovalAction = "APPROVE"
	ApprovalReject   ApprovalAction = "REJECT"
	ApprovalArchive  ApprovalAction = "ARCHIVE"
	ApprovalGenerate ApprovalAction = "GENERATE"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID         int64          `json:"id"`
	ContractID int64          `json:"contract_id"`
	ActorID    int64          `json:"actor_id"`
	Action     ApprovalAction `json:"action"`
	Note       string         `json:"note,omitempty"`
	At         time.Time      `json:"at"`
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ApprovalRecorder persists contract approval history.
type ApprovalRecorder struct {
	db Querier
}

// NewApprovalRecorder constructs ApprovalRecorder. Pass a transaction to
// record alongside a status change.
func NewApprovalRecorder(db Querier) *ApprovalRecorder {
	return &ApprovalRecorder{db: db}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.db == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.ContractID <= 0 {
		return errors.New("approval contract required")
	}
	if log.ActorID <= 0 {
		return errors.New("approval actor required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	tag, err := r.db.Exec(ctx, `INSERT INTO contract_approvals (contract_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`, log.ContractID, log.ActorID, string(log.Action), log.Note, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errors.New("approval not recorded")
	}
	return nil
}

// List returns the approval history of a contract, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, contractID int64) ([]ApprovalLog, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.db.Query(ctx, `SELECT id, contract_id, actor_id, action, note, at
FROM contract_approvals WHERE contract_id = $1 ORDER BY at ASC, id ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.ContractID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
