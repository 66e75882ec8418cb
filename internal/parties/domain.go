// Package parties manages the clients and employers that sign contracts.
package parties

import (
	"errors"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
)

// ErrNotFound indicates the party does not exist.
var ErrNotFound = errors.New("parties: not found")

// ErrDuplicateCR indicates another party holds the commercial registration number.
var ErrDuplicateCR = errors.New("parties: cr number already registered")

// Kind tells which side of a contract a party signs on.
type Kind string

// Party kinds.
const (
	KindClient   Kind = "client"
	KindEmployer Kind = "employer"
)

// Party is a company named as first or second party on contracts.
type Party struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	CRNumber  *string   `json:"cr_number,omitempty"`
	OwnerID   int64     `json:"owner_id"`
	CompanyID int64     `json:"company_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ownership returns the fields scope resolution needs.
func (p Party) Ownership() rbac.Ownership {
	return rbac.Ownership{OwnerID: p.OwnerID, CompanyID: p.CompanyID}
}

// Input carries the editable party fields.
type Input struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Kind     Kind    `json:"kind" validate:"required,oneof=client employer"`
	CRNumber *string `json:"cr_number,omitempty" validate:"omitempty,alphanum,max=32"`
}

// ListFilter narrows a party listing.
type ListFilter struct {
	Kind      Kind
	Search    string
	Scope     rbac.Scope
	UserID    int64
	CompanyID int64
	Limit     int
	Offset    int
}
