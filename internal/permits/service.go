package permits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/contracthub/contracthub/internal/promoters"
	"github.com/contracthub/contracthub/internal/rbac"
)

// Store defines data access methods for permits.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Permit, int, error)
	Get(ctx context.Context, id int64) (Permit, error)
	Create(ctx context.Context, p Permit) (Permit, error)
	Update(ctx context.Context, p Permit) (Permit, error)
}

// PromoterLookup resolves the promoter a permit belongs to.
// *promoters.Repository satisfies it.
type PromoterLookup interface {
	Get(ctx context.Context, id int64) (promoters.Promoter, error)
}

// Service handles permit business logic.
type Service struct {
	store     Store
	promoters PromoterLookup
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(store Store, promoters PromoterLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, promoters: promoters, logger: logger, now: time.Now}
}

// List returns the permits the grant may read.
func (s *Service) List(ctx context.Context, grant rbac.Grant, filter ListFilter) ([]Permit, int, error) {
	scope, err := grant.ListScope(rbac.ResourcePermit, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope
	filter.UserID = grant.Principal.UserID
	filter.CompanyID = grant.Principal.CompanyID
	list, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range list {
		list[i].Status = list[i].Effective(now)
	}
	return list, total, nil
}

// Get returns one permit the grant may read.
func (s *Service) Get(ctx context.Context, grant rbac.Grant, id int64) (Permit, error) {
	p, err := s.load(ctx, grant, id, rbac.ActionRead)
	if err != nil {
		return Permit{}, err
	}
	p.Status = p.Effective(s.now())
	return p, nil
}

// Create records a permit for a promoter the caller can see. Create scope is
// resolved against the promoter, and the permit joins the promoter's company.
func (s *Service) Create(ctx context.Context, grant rbac.Grant, in Input) (Permit, error) {
	promoter, err := s.promoter(ctx, grant, in.PromoterID)
	if err != nil {
		return Permit{}, err
	}
	p, err := applyInput(Permit{
		OwnerID:   grant.Principal.UserID,
		CompanyID: promoter.CompanyID,
		Status:    StatusActive,
	}, in)
	if err != nil {
		return Permit{}, err
	}
	if _, err := grant.Check(rbac.ResourcePermit, rbac.ActionCreate, promoter.Ownership()); err != nil {
		return Permit{}, err
	}
	created, err := s.store.Create(ctx, p)
	if err != nil {
		return Permit{}, err
	}
	s.logger.Info("permit recorded",
		slog.Int64("permit_id", created.ID),
		slog.Int64("promoter_id", created.PromoterID),
		slog.Time("expiry_date", created.ExpiryDate))
	return created, nil
}

// Update edits a permit the grant may update. Moving it to another promoter
// requires read access to that promoter.
func (s *Service) Update(ctx context.Context, grant rbac.Grant, id int64, in Input) (Permit, error) {
	p, err := s.load(ctx, grant, id, rbac.ActionUpdate)
	if err != nil {
		return Permit{}, err
	}
	if in.PromoterID != p.PromoterID {
		if _, err := s.promoter(ctx, grant, in.PromoterID); err != nil {
			return Permit{}, err
		}
	}
	p, err = applyInput(p, in)
	if err != nil {
		return Permit{}, err
	}
	return s.store.Update(ctx, p)
}

func (s *Service) load(ctx context.Context, grant rbac.Grant, id int64, action rbac.Action) (Permit, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Permit{}, err
	}
	if _, err := grant.Check(rbac.ResourcePermit, action, p.Ownership()); err != nil {
		return Permit{}, err
	}
	return p, nil
}

func (s *Service) promoter(ctx context.Context, grant rbac.Grant, id int64) (promoters.Promoter, error) {
	promoter, err := s.promoters.Get(ctx, id)
	if errors.Is(err, promoters.ErrNotFound) {
		return promoters.Promoter{}, fmt.Errorf("%w: promoter %d does not exist", rbac.ErrInvalidInput, id)
	}
	if err != nil {
		return promoters.Promoter{}, err
	}
	if _, err := grant.Check(rbac.ResourcePromoter, rbac.ActionRead, promoter.Ownership()); err != nil {
		return promoters.Promoter{}, err
	}
	return promoter, nil
}

func applyInput(p Permit, in Input) (Permit, error) {
	number := strings.ToUpper(strings.TrimSpace(in.PermitNumber))
	if number == "" {
		return Permit{}, fmt.Errorf("%w: permit number required", rbac.ErrInvalidInput)
	}
	if in.IssueDate.IsZero() || in.ExpiryDate.IsZero() {
		return Permit{}, fmt.Errorf("%w: issue and expiry dates required", rbac.ErrInvalidInput)
	}
	if in.ExpiryDate.Before(in.IssueDate) {
		return Permit{}, fmt.Errorf("%w: expiry date before issue date", rbac.ErrInvalidInput)
	}
	p.PromoterID = in.PromoterID
	p.PermitNumber = number
	p.IssueDate = in.IssueDate
	p.ExpiryDate = in.ExpiryDate
	if in.Status != "" {
		p.Status = in.Status
	}
	return p, nil
}
