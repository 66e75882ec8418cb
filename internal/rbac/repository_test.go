package rbac

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/contracthub/contracthub/internal/platform/db"
)

func TestMapPGError(t *testing.T) {
	fk := fmt.Errorf("attach: %w", &pgconn.PgError{Code: db.CodeForeignKeyViolation, ConstraintName: "role_permissions_role_id_fkey"})
	err := mapPGError(fk)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "role_permissions_role_id_fkey")

	assert.ErrorIs(t, mapPGError(pgx.ErrNoRows), ErrNotFound)

	unique := &pgconn.PgError{Code: db.CodeUniqueViolation}
	assert.Same(t, unique, mapPGError(unique))

	other := errors.New("conn reset")
	assert.Same(t, other, mapPGError(other))
}
