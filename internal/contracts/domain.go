// Package contracts manages employment contracts and their approval lifecycle.
package contracts

import (
	"errors"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
)

var (
	// ErrNotFound indicates the contract does not exist.
	ErrNotFound = errors.New("contracts: not found")
	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("contracts: invalid status transition")
	// ErrDuplicateRequest indicates an Idempotency-Key was already used.
	ErrDuplicateRequest = errors.New("contracts: duplicate request")
)

// Status is the contract lifecycle state.
type Status string

// Contract statuses.
const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusArchived Status = "archived"
)

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusPending:
		return from == StatusDraft
	case StatusApproved, StatusRejected:
		return from == StatusPending
	case StatusArchived:
		return from != StatusArchived
	default:
		return false
	}
}

// Contract is a contract between two parties for one promoter.
type Contract struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	Title           string     `json:"title"`
	Status          Status     `json:"status"`
	FirstPartyID    *int64     `json:"first_party_id,omitempty"`
	SecondPartyID   *int64     `json:"second_party_id,omitempty"`
	PromoterID      *int64     `json:"promoter_id,omitempty"`
	OwnerID         int64      `json:"owner_id"`
	CompanyID       int64      `json:"company_id,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	ValueCents      int64      `json:"value_cents"`
	Currency        string     `json:"currency"`
	DocumentURL     string     `json:"document_url,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Ownership returns the fields scope resolution needs.
func (c Contract) Ownership() rbac.Ownership {
	return rbac.Ownership{OwnerID: c.OwnerID, CompanyID: c.CompanyID}
}

// Input carries the editable contract fields.
type Input struct {
	Title         string     `json:"title" validate:"required,max=200"`
	FirstPartyID  *int64     `json:"first_party_id,omitempty" validate:"omitempty,gt=0"`
	SecondPartyID *int64     `json:"second_party_id,omitempty" validate:"omitempty,gt=0"`
	PromoterID    *int64     `json:"promoter_id,omitempty" validate:"omitempty,gt=0"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	ValueCents    int64      `json:"value_cents" validate:"gte=0"`
	Currency      string     `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	// Submit moves a draft to pending after the update.
	Submit bool `json:"submit,omitempty"`
}

// ListFilter narrows a contract listing. Scope ScopeOwn restricts rows to
// those owned by UserID or belonging to CompanyID.
type ListFilter struct {
	Status    Status
	Search    string
	Scope     rbac.Scope
	UserID    int64
	CompanyID int64
	Limit     int
	Offset    int
}

// Transition is one audited status change.
type Transition struct {
	ContractID int64
	From       Status
	To         Status
	ActorID    int64
	Action     shared.ApprovalAction
	Reason     string
}
