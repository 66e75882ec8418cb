package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/shared"
	"github.com/contracthub/contracthub/jobs"
)

const idempotencyModule = "contracts.generate"

// Store defines data access methods for contracts.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Contract, int, error)
	Get(ctx context.Context, id int64) (Contract, error)
	Create(ctx context.Context, c Contract) (Contract, error)
	Update(ctx context.Context, c Contract) (Contract, error)
	Transition(ctx context.Context, t Transition) (Contract, error)
	SetDocument(ctx context.Context, id int64, url string) error
	Log(ctx context.Context, entry shared.ApprovalLog) error
	History(ctx context.Context, id int64) ([]shared.ApprovalLog, error)
}

// Enqueuer schedules document generation. *jobs.Client satisfies it.
type Enqueuer interface {
	EnqueueContractGenerate(ctx context.Context, contractID, requestedBy int64) error
}

// Renderer produces a document for a contract and returns its URL.
type Renderer interface {
	Render(ctx context.Context, c Contract) (string, error)
}

// KeyStore deduplicates client requests. *shared.IdempotencyStore satisfies it.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Service handles contract business logic.
type Service struct {
	store    Store
	enqueuer Enqueuer
	renderer Renderer
	keys     KeyStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. enqueuer, renderer and keys may be nil;
// generation then fails as unavailable.
func NewService(store Store, enqueuer Enqueuer, renderer Renderer, keys KeyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, enqueuer: enqueuer, renderer: renderer, keys: keys, logger: logger, now: time.Now}
}

// List returns the contracts the grant may read.
func (s *Service) List(ctx context.Context, grant rbac.Grant, filter ListFilter) ([]Contract, int, error) {
	scope, err := grant.ListScope(rbac.ResourceContract, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	filter.Scope = scope
	filter.UserID = grant.Principal.UserID
	filter.CompanyID = grant.Principal.CompanyID
	return s.store.List(ctx, filter)
}

// Get returns one contract the grant may read.
func (s *Service) Get(ctx context.Context, grant rbac.Grant, id int64) (Contract, error) {
	return s.load(ctx, grant, id, rbac.ActionRead)
}

// History returns the approval log of a readable contract.
func (s *Service) History(ctx context.Context, grant rbac.Grant, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.load(ctx, grant, id, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// Create stores a draft owned by the caller.
func (s *Service) Create(ctx context.Context, grant rbac.Grant, in Input) (Contract, error) {
	if err := validateInput(in); err != nil {
		return Contract{}, err
	}
	c := applyInput(Contract{
		Number:    s.newNumber(),
		OwnerID:   grant.Principal.UserID,
		CompanyID: grant.Principal.CompanyID,
	}, in)
	created, err := s.store.Create(ctx, c)
	if err != nil {
		return Contract{}, err
	}
	if !in.Submit {
		return created, nil
	}
	return s.transition(ctx, grant, created, StatusPending, shared.ApprovalSubmit, "")
}

// Update edits a draft and optionally submits it for approval.
func (s *Service) Update(ctx context.Context, grant rbac.Grant, id int64, in Input) (Contract, error) {
	c, err := s.load(ctx, grant, id, rbac.ActionUpdate)
	if err != nil {
		return Contract{}, err
	}
	if c.Status != StatusDraft {
		return Contract{}, fmt.Errorf("%w: only drafts can be edited, contract is %s", ErrInvalidTransition, c.Status)
	}
	if err := validateInput(in); err != nil {
		return Contract{}, err
	}
	updated, err := s.store.Update(ctx, applyInput(c, in))
	if err != nil {
		return Contract{}, err
	}
	if !in.Submit {
		return updated, nil
	}
	return s.transition(ctx, grant, updated, StatusPending, shared.ApprovalSubmit, "")
}

// Approve moves a pending contract to approved.
func (s *Service) Approve(ctx context.Context, grant rbac.Grant, id int64, note string) (Contract, error) {
	c, err := s.load(ctx, grant, id, rbac.ActionApprove)
	if err != nil {
		return Contract{}, err
	}
	return s.transition(ctx, grant, c, StatusApproved, shared.ApprovalApprove, note)
}

// Reject moves a pending contract to rejected. reason is required.
func (s *Service) Reject(ctx context.Context, grant rbac.Grant, id int64, reason string) (Contract, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Contract{}, fmt.Errorf("%w: rejection reason required", rbac.ErrInvalidInput)
	}
	c, err := s.load(ctx, grant, id, rbac.ActionReject)
	if err != nil {
		return Contract{}, err
	}
	return s.transition(ctx, grant, c, StatusRejected, shared.ApprovalReject, reason)
}

// Archive retires a contract from any other status.
func (s *Service) Archive(ctx context.Context, grant rbac.Grant, id int64, note string) (Contract, error) {
	c, err := s.load(ctx, grant, id, rbac.ActionArchive)
	if err != nil {
		return Contract{}, err
	}
	return s.transition(ctx, grant, c, StatusArchived, shared.ApprovalArchive, note)
}

// RequestGeneration enqueues document generation. A non-empty key that was
// already used fails with ErrDuplicateRequest.
func (s *Service) RequestGeneration(ctx context.Context, grant rbac.Grant, id int64, key string) error {
	c, err := s.load(ctx, grant, id, rbac.ActionGenerate)
	if err != nil {
		return err
	}
	if err := generatable(c); err != nil {
		return err
	}
	if s.enqueuer == nil {
		return errors.New("contracts: document generation not configured")
	}
	key = strings.TrimSpace(key)
	if key != "" && s.keys != nil {
		if err := s.keys.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ErrDuplicateRequest
			}
			return err
		}
	}
	actor := grant.Principal.UserID
	if err := s.enqueuer.EnqueueContractGenerate(ctx, id, actor); err != nil {
		if key != "" && s.keys != nil {
			if derr := s.keys.Delete(ctx, key, idempotencyModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return err
	}
	if err := s.store.Log(ctx, shared.ApprovalLog{ContractID: id, ActorID: actor, Action: shared.ApprovalGenerate, Note: "requested"}); err != nil {
		s.logger.Warn("log generation request", slog.Int64("contract_id", id), slog.Any("error", err))
	}
	return nil
}

// GenerateDocument renders the contract and stores the document URL. It runs
// inside the worker, outside any request, so it performs no permission check.
func (s *Service) GenerateDocument(ctx context.Context, id int64) (string, error) {
	c, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: contract %d not found", jobs.ErrPermanent, id)
	}
	if err != nil {
		return "", err
	}
	if err := generatable(c); err != nil {
		return "", fmt.Errorf("%w: %w", jobs.ErrPermanent, err)
	}
	if s.renderer == nil {
		return "", fmt.Errorf("%w: contract webhook not configured", jobs.ErrPermanent)
	}
	url, err := s.renderer.Render(ctx, c)
	if err != nil {
		return "", err
	}
	if err := s.store.SetDocument(ctx, id, url); err != nil {
		return "", err
	}
	s.logger.Info("contract document generated", slog.Int64("contract_id", id), slog.String("url", url))
	return url, nil
}

func (s *Service) load(ctx context.Context, grant rbac.Grant, id int64, action rbac.Action) (Contract, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Contract{}, err
	}
	if _, err := grant.Check(rbac.ResourceContract, action, c.Ownership()); err != nil {
		return Contract{}, err
	}
	return c, nil
}

func (s *Service) transition(ctx context.Context, grant rbac.Grant, c Contract, to Status, action shared.ApprovalAction, note string) (Contract, error) {
	if !CanTransition(c.Status, to) {
		return Contract{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Status, to)
	}
	return s.store.Transition(ctx, Transition{
		ContractID: c.ID,
		From:       c.Status,
		To:         to,
		ActorID:    grant.Principal.UserID,
		Action:     action,
		Reason:     strings.TrimSpace(note),
	})
}

func (s *Service) newNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "CH-" + s.now().UTC().Format("20060102") + "-" + suffix
}

func generatable(c Contract) error {
	if c.Status == StatusRejected || c.Status == StatusArchived {
		return fmt.Errorf("%w: cannot generate a document for a %s contract", ErrInvalidTransition, c.Status)
	}
	return nil
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title required", rbac.ErrInvalidInput)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return fmt.Errorf("%w: end date precedes start date", rbac.ErrInvalidInput)
	}
	return nil
}

func applyInput(c Contract, in Input) Contract {
	c.Title = strings.TrimSpace(in.Title)
	c.FirstPartyID = in.FirstPartyID
	c.SecondPartyID = in.SecondPartyID
	c.PromoterID = in.PromoterID
	c.StartDate = in.StartDate
	c.EndDate = in.EndDate
	c.ValueCents = in.ValueCents
	c.Currency = in.Currency
	if c.Currency == "" {
		c.Currency = "OMR"
	}
	return c
}
