package promoters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/contracthub/contracthub/internal/platform/objectstore"
	"github.com/contracthub/contracthub/internal/rbac"
)

// Store defines data access methods for promoters.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Promoter, int, error)
	Get(ctx context.Context, id int64) (Promoter, error)
	Create(ctx context.Context, p Promoter) (Promoter, error)
	Update(ctx context.Context, p Promoter) (Promoter, error)
	SetDocument(ctx context.Context, id int64, kind DocumentKind, key string) error
}

// ErrUploadsDisabled indicates no object store is configured.
var ErrUploadsDisabled = errors.New("promoters: document uploads not configured")

// Service handles promoter business logic.
type Service struct {
	store  Store
	files  objectstore.Store
	logger *slog.Logger
}

// NewService builds Service instance. files may be nil.
func NewService(store Store, files objectstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, files: files, logger: logger}
}

// List returns the promoters the grant may read.
func (s *Service) List(ctx context.Context, grant rbac.Grant, filter ListFilter) ([]Promoter, int, error) {
	scope, err := grant.ListScope(rbac.ResourcePromoter, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope
	filter.UserID = grant.Principal.UserID
	filter.CompanyID = grant.Principal.CompanyID
	return s.store.List(ctx, filter)
}

// Get returns one promoter the grant may read.
func (s *Service) Get(ctx context.Context, grant rbac.Grant, id int64) (Promoter, error) {
	return s.load(ctx, grant, id, rbac.ActionRead)
}

// Create registers a promoter owned by the caller.
func (s *Service) Create(ctx context.Context, grant rbac.Grant, in Input) (Promoter, error) {
	p, err := applyInput(Promoter{
		OwnerID:   grant.Principal.UserID,
		CompanyID: grant.Principal.CompanyID,
		Status:    StatusActive,
	}, in)
	if err != nil {
		return Promoter{}, err
	}
	return s.store.Create(ctx, p)
}

// Update edits a promoter the grant may update.
func (s *Service) Update(ctx context.Context, grant rbac.Grant, id int64, in Input) (Promoter, error) {
	p, err := s.load(ctx, grant, id, rbac.ActionUpdate)
	if err != nil {
		return Promoter{}, err
	}
	p, err = applyInput(p, in)
	if err != nil {
		return Promoter{}, err
	}
	return s.store.Update(ctx, p)
}

// UploadDocument stores an identity document and links it to the promoter.
// The caller must be allowed to update the promoter.
func (s *Service) UploadDocument(ctx context.Context, grant rbac.Grant, id int64, kind DocumentKind, filename, contentType string, body io.Reader) (Promoter, error) {
	p, err := s.load(ctx, grant, id, rbac.ActionUpdate)
	if err != nil {
		return Promoter{}, err
	}
	if s.files == nil {
		return Promoter{}, ErrUploadsDisabled
	}
	key := objectstore.NewKey(fmt.Sprintf("promoters/%d/%s", id, kind), filename)
	if err := s.files.Put(ctx, key, body, contentType); err != nil {
		return Promoter{}, err
	}
	if err := s.store.SetDocument(ctx, id, kind, key); err != nil {
		return Promoter{}, err
	}
	s.logger.Info("promoter document uploaded",
		slog.Int64("promoter_id", id),
		slog.String("kind", string(kind)),
		slog.String("key", key))
	switch kind {
	case DocumentPassport:
		p.PassportKey = key
	default:
		p.IDCardKey = key
	}
	return p, nil
}

func (s *Service) load(ctx context.Context, grant rbac.Grant, id int64, action rbac.Action) (Promoter, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return Promoter{}, err
	}
	if _, err := grant.Check(rbac.ResourcePromoter, action, p.Ownership()); err != nil {
		return Promoter{}, err
	}
	return p, nil
}

func applyInput(p Promoter, in Input) (Promoter, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return Promoter{}, fmt.Errorf("%w: full name required", rbac.ErrInvalidInput)
	}
	if blank(in.NationalID) && blank(in.PassportNumber) {
		return Promoter{}, fmt.Errorf("%w: national id or passport number required", rbac.ErrInvalidInput)
	}
	p.FullName = name
	p.NationalID = normalize(in.NationalID)
	p.PassportNumber = normalize(in.PassportNumber)
	p.Nationality = strings.TrimSpace(in.Nationality)
	p.Mobile = strings.TrimSpace(in.Mobile)
	p.EmployerID = in.EmployerID
	if in.Status != "" {
		p.Status = in.Status
	}
	return p, nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func normalize(s *string) *string {
	if blank(s) {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*s))
	return &v
}
