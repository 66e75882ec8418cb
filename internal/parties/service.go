package parties

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/contracthub/contracthub/internal/rbac"
)

// Store defines data access methods for parties.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Party, int, error)
	Get(ctx context.Context, id int64) (Party, error)
	Create(ctx context.Context, p Party) (Party, error)
	Update(ctx context.Context, p Party) (Party, error)
}

// Service handles party business logic.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// List returns the parties the grant may read.
func (s *Service) List(ctx context.Context, grant rbac.Grant, filter ListFilter) ([]Party, int, error) {
	scope, err := grant.ListScope(rbac.ResourceParty, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope
	filter.UserID = grant.Principal.UserID
	filter.CompanyID = grant.Principal.CompanyID
	return s.store.List(ctx, filter)
}

// Get returns one party the grant may read.
func (s *Service) Get(ctx context.Context, grant rbac.Grant, id int64) (Party, error) {
	return s.load(ctx, grant, id, rbac.ActionRead)
}

// Create registers a party owned by the caller and their company.
func (s *Service) Create(ctx context.Context, grant rbac.Grant, in Input) (Party, error) {
	p, err := applyInput(Party{
		OwnerID:   grant.Principal.UserID,
		CompanyID: grant.Principal.CompanyID,
	}, in)
	if err != nil {
		return Party{}, err
	}
	created, err := s.store.Create(ctx, p)
	if err != nil {
		return Party{}, err
	}
	s.logger.Info("party created",
		slog.Int64("party_id", created.ID),
		slog.String("kind", string(created.Kind)),
		slog.Int64("actor_id", grant.Principal.UserID))
	return created, nil
}

// Update edits a party the grant may update.
func (s *Service) Update(ctx context.Context, grant rbac.Grant, id int64, in Input) (Party, error) {
	p, err := s.load(ctx, grant, id, rbac.ActionUpdate)
	if err != nil {
		return Party{}, err
	}
	p, err = applyInput(p, in)
	if err != nil {
		return Party{}, err
	}
	return s.store.Update(ctx, p)
}

func (s *Service) load(ctx context.Context, grant rbac.Grant, id int64, action rbac.Action) (Party, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Party{}, err
	}
	if _, err := grant.Check(rbac.ResourceParty, action, p.Ownership()); err != nil {
		return Party{}, err
	}
	return p, nil
}

func applyInput(p Party, in Input) (Party, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Party{}, fmt.Errorf("%w: name required", rbac.ErrInvalidInput)
	}
	switch in.Kind {
	case KindClient, KindEmployer:
	default:
		return Party{}, fmt.Errorf("%w: kind must be client or employer", rbac.ErrInvalidInput)
	}
	p.Name = name
	p.Kind = in.Kind
	p.CRNumber = nil
	if in.CRNumber != nil {
		if cr := strings.ToUpper(strings.TrimSpace(*in.CRNumber)); cr != "" {
			p.CRNumber = &cr
		}
	}
	return p, nil
}
