// Package promoters manages the promoter workforce and their identity documents.
package promoters

import (
	"errors"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
)

// ErrNotFound indicates the promoter does not exist.
var ErrNotFound = errors.New("promoters: not found")

// ErrDuplicateID indicates another promoter holds the national id.
var ErrDuplicateID = errors.New("promoters: national id already registered")

// Status is the employment status of a promoter.
type Status string

// Promoter statuses.
const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusTerminated Status = "terminated"
)

// DocumentKind names an uploadable identity document.
type DocumentKind string

// Document kinds.
const (
	DocumentIDCard   DocumentKind = "id_card"
	DocumentPassport DocumentKind = "passport"
)

// ParseDocumentKind validates a kind from the URL.
func ParseDocumentKind(raw string) (DocumentKind, bool) {
	switch DocumentKind(raw) {
	case DocumentIDCard:
		return DocumentIDCard, true
	case DocumentPassport:
		return DocumentPassport, true
	}
	return "", false
}

// Promoter is a field worker placed under contracts. Document fields hold
// object store keys.
type Promoter struct {
	ID             int64     `json:"id"`
	FullName       string    `json:"full_name"`
	NationalID     *string   `json:"national_id,omitempty"`
	PassportNumber *string   `json:"passport_number,omitempty"`
	Nationality    string    `json:"nationality"`
	Mobile         string    `json:"mobile"`
	EmployerID     *int64    `json:"employer_id,omitempty"`
	OwnerID        int64     `json:"owner_id"`
	CompanyID      int64     `json:"company_id,omitempty"`
	Status         Status    `json:"status"`
	IDCardKey      string    `json:"id_card_key,omitempty"`
	PassportKey    string    `json:"passport_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ownership returns the fields scope resolution needs.
func (p Promoter) Ownership() rbac.Ownership {
	return rbac.Ownership{OwnerID: p.OwnerID, CompanyID: p.CompanyID}
}

// Input carries the editable promoter fields.
type Input struct {
	FullName       string  `json:"full_name" validate:"required,max=200"`
	NationalID     *string `json:"national_id,omitempty" validate:"omitempty,alphanum,max=32"`
	PassportNumber *string `json:"passport_number,omitempty" validate:"omitempty,alphanum,max=32"`
	Nationality    string  `json:"nationality" validate:"max=64"`
	Mobile         string  `json:"mobile" validate:"omitempty,e164"`
	EmployerID     *int64  `json:"employer_id,omitempty" validate:"omitempty,gt=0"`
	Status         Status  `json:"status,omitempty" validate:"omitempty,oneof=active inactive terminated"`
}

// ListFilter narrows a promoter listing.
type ListFilter struct {
	Status    Status
	Search    string
	Scope     rbac.Scope
	UserID    int64
	CompanyID int64
	Limit     int
	Offset    int
}
