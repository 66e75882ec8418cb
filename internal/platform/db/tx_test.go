package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation})
	assert.True(t, IsCode(err, CodeUniqueViolation))
	assert.False(t, IsCode(err, CodeForeignKeyViolation))
	assert.False(t, IsCode(fmt.Errorf("plain"), CodeUniqueViolation))
}

func TestConstraint(t *testing.T) {
	err := fmt.Errorf("attach: %w", &pgconn.PgError{Code: CodeForeignKeyViolation, ConstraintName: "role_permissions_permission_id_fkey"})
	assert.Equal(t, "role_permissions_permission_id_fkey", Constraint(err))
	assert.Empty(t, Constraint(fmt.Errorf("plain")))
}
