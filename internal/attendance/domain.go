// Package attendance records promoter check-ins and check-outs.
package attendance

import (
	"errors"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
)

var (
	// ErrAlreadyCheckedIn indicates the user has an open record.
	ErrAlreadyCheckedIn = errors.New("attendance: already checked in")
	// ErrNotCheckedIn indicates there is no open record to close.
	ErrNotCheckedIn = errors.New("attendance: not checked in")
)

// Record is one shift. CheckOutAt and WorkedMinutes are nil while open.
type Record struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	CompanyID     int64      `json:"company_id,omitempty"`
	CheckInAt     time.Time  `json:"check_in_at"`
	CheckOutAt    *time.Time `json:"check_out_at,omitempty"`
	WorkedMinutes *int       `json:"worked_minutes,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Note          string     `json:"note,omitempty"`
}

// Open reports whether the record has not been checked out.
func (r Record) Open() bool {
	return r.CheckOutAt == nil
}

// WorkedMinutes returns whole minutes between in and out, never negative.
func WorkedMinutes(in, out time.Time) int {
	d := out.Sub(in)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// CheckIn carries the check-in request.
type CheckIn struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Note      string   `json:"note,omitempty" validate:"max=500"`
}

// ListFilter narrows an attendance listing.
type ListFilter struct {
	Scope     rbac.Scope
	UserID    int64
	CompanyID int64
	// ForUser restricts an all-scope listing to one user.
	ForUser int64
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}
