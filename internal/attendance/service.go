package attendance

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/contracthub/contracthub/internal/rbac"
)

// Store defines data access methods for attendance.
type Store interface {
	CheckIn(ctx context.Context, rec Record) (Record, error)
	CheckOut(ctx context.Context, userID int64, at time.Time, note string) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
}

// Service handles attendance business logic.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CheckIn opens a shift for the caller.
func (s *Service) CheckIn(ctx context.Context, principal rbac.Principal, in CheckIn) (Record, error) {
	rec, err := s.store.CheckIn(ctx, Record{
		UserID:    principal.UserID,
		CompanyID: principal.CompanyID,
		CheckInAt: s.now().UTC(),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Note:      strings.TrimSpace(in.Note),
	})
	if err != nil {
		return Record{}, err
	}
	s.logger.Debug("checked in", slog.Int64("user_id", principal.UserID), slog.Int64("record_id", rec.ID))
	return rec, nil
}

// CheckOut closes the caller's open shift.
func (s *Service) CheckOut(ctx context.Context, principal rbac.Principal, note string) (Record, error) {
	return s.store.CheckOut(ctx, principal.UserID, s.now().UTC(), strings.TrimSpace(note))
}

// List returns the records the grant may read.
func (s *Service) List(ctx context.Context, grant rbac.Grant, filter ListFilter) ([]Record, int, error) {
	scope, err := grant.ListScope(rbac.ResourceAttendance, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope
	filter.UserID = grant.Principal.UserID
	filter.CompanyID = grant.Principal.CompanyID
	return s.store.List(ctx, filter)
}
