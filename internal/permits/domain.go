// Package permits tracks the work permits held by promoters.
package permits

import (
	"errors"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
)

// ErrNotFound indicates the permit does not exist.
var ErrNotFound = errors.New("permits: not found")

// ErrDuplicateNumber indicates another permit carries the same number.
var ErrDuplicateNumber = errors.New("permits: permit number already registered")

// Status is the lifecycle state of a permit.
type Status string

// Permit statuses.
const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Permit authorises a promoter to work between two dates.
type Permit struct {
	ID           int64     `json:"id"`
	PromoterID   int64     `json:"promoter_id"`
	PermitNumber string    `json:"permit_number"`
	IssueDate    time.Time `json:"issue_date"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Status       Status    `json:"status"`
	OwnerID      int64     `json:"owner_id"`
	CompanyID    int64     `json:"company_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ownership returns the fields scope resolution needs.
func (p Permit) Ownership() rbac.Ownership {
	return rbac.Ownership{OwnerID: p.OwnerID, CompanyID: p.CompanyID}
}

// Effective reports the status as of now. An active permit past its expiry
// date reads as expired even before anyone updates the row.
func (p Permit) Effective(now time.Time) Status {
	if p.Status == StatusActive && endOfDay(p.ExpiryDate).Before(now) {
		return StatusExpired
	}
	return p.Status
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Input carries the editable permit fields.
type Input struct {
	PromoterID   int64     `json:"promoter_id" validate:"required,gt=0"`
	PermitNumber string    `json:"permit_number" validate:"required,alphanum,max=32"`
	IssueDate    time.Time `json:"issue_date" validate:"required"`
	ExpiryDate   time.Time `json:"expiry_date" validate:"required"`
	Status       Status    `json:"status,omitempty" validate:"omitempty,oneof=active expired cancelled"`
}

// ListFilter narrows a permit listing. ExpiringBefore keeps active permits
// whose expiry date falls on or before it.
type ListFilter struct {
	PromoterID     int64
	Status         Status
	ExpiringBefore *time.Time
	Scope          rbac.Scope
	UserID         int64
	CompanyID      int64
	Limit          int
	Offset         int
}
