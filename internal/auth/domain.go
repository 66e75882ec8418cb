package auth

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no active account matches.
	ErrNotFound = errors.New("auth: user not found")
	// ErrInvalidCredentials covers unknown emails, inactive accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	CompanyID    int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginSession is the audit record of a sign-in.
type LoginSession struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
