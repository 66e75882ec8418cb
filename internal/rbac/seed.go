package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SeedReport summarises what a seeding run touched.
type SeedReport struct {
	Permissions int    `json:"permissions"`
	Roles       int    `json:"roles"`
	Attachments int    `json:"attachments"`
	Failed      int    `json:"failed"`
	After       Counts `json:"after"`
}

// Seeder applies a Catalog through idempotent upserts.
type Seeder struct {
	store     CatalogStore
	refresher Refresher
	logger    *slog.Logger
}

// NewSeeder constructs a Seeder. refresher may be nil.
func NewSeeder(store CatalogStore, refresher Refresher, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, refresher: refresher, logger: logger}
}

// Apply upserts every permission and role of cat and attaches permissions.
// A failing entry is reported in the joined error while every other entry is
// still applied. The view is refreshed once at the end.
func (s *Seeder) Apply(ctx context.Context, cat Catalog) (SeedReport, error) {
	var (
		report SeedReport
		errs   []error
	)
	ids := make(map[Permission]int64, len(cat.Permissions))
	for _, entry := range cat.Permissions {
		perm, err := ParsePermission(entry.Name)
		if err != nil {
			errs = append(errs, &SeedError{Permission: entry.Name, Err: err})
			continue
		}
		label := entry.DisplayName
		if label == "" {
			label = displayName(perm)
		}
		id, err := s.store.UpsertPermission(ctx, perm, label, entry.Description)
		if err != nil {
			if ctx.Err() != nil {
				return report, err
			}
			errs = append(errs, &SeedError{Permission: entry.Name, Err: err})
			continue
		}
		ids[perm] = id
		report.Permissions++
	}

	for _, role := range cat.Roles {
		attached, err := s.applyRole(ctx, cat, role, ids)
		report.Attachments += attached
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		report.Roles++
	}

	if s.refresher != nil {
		if err := s.refresher.RequestRefresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rbac seed: refresh: %w", err))
		}
	}
	counts, err := s.store.Counts(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("rbac seed: counts: %w", err))
	}
	report.After = counts
	report.Failed = len(errs)

	s.logger.Info("rbac seed applied",
		slog.Int("permissions", report.Permissions),
		slog.Int("roles", report.Roles),
		slog.Int("attachments", report.Attachments),
		slog.Int("failed", report.Failed))
	return report, errors.Join(errs...)
}

func (s *Seeder) applyRole(ctx context.Context, cat Catalog, role CatalogRole, ids map[Permission]int64) (int, error) {
	category, err := ParseCategory(role.Category)
	if err != nil {
		return 0, &SeedError{Role: role.Name, Err: err}
	}
	names, err := cat.RolePermissions(role.Name)
	if err != nil {
		return 0, &SeedError{Role: role.Name, Err: err}
	}
	roleID, err := s.store.UpsertRole(ctx, role.Name, category, role.Description)
	if err != nil {
		return 0, &SeedError{Role: role.Name, Err: err}
	}

	var (
		attached int
		errs     []error
	)
	for _, name := range names {
		perm, err := ParsePermission(name)
		if err != nil {
			errs = append(errs, &SeedError{Role: role.Name, Permission: name, Err: err})
			continue
		}
		permID, ok := ids[perm]
		if !ok {
			errs = append(errs, &SeedError{Role: role.Name, Permission: name, Err: ErrNotFound})
			continue
		}
		if err := s.store.AttachPermission(ctx, roleID, permID); err != nil {
			errs = append(errs, &SeedError{Role: role.Name, Permission: name, Err: err})
			continue
		}
		attached++
	}
	return attached, errors.Join(errs...)
}
