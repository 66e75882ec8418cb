package users

import (
	"errors"
	"time"
)

// ErrNotFound is returned when the user does not exist.
var ErrNotFound = errors.New("users: not found")

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CompanyID int64     `json:"company_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows ListUsers.
type ListFilter struct {
	Search    string
	CompanyID int64
	Limit     int
	Offset    int
}
