package rbac

import (
	"context"
	"fmt"
	"log/slog"
)

// PermissionSource resolves a user's effective permission set.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) (Set, error)
}

// PermissionSourceFunc adapts a function to PermissionSource.
type PermissionSourceFunc func(ctx context.Context, userID int64) (Set, error)

// EffectivePermissions calls f.
func (f PermissionSourceFunc) EffectivePermissions(ctx context.Context, userID int64) (Set, error) {
	return f(ctx, userID)
}

// Loader reads effective permissions from the materialized view and falls
// back to the live join when the view misses.
type Loader struct {
	view    *MaterializedView
	live    LiveSource
	logger  *slog.Logger
	metrics *Metrics
}

// NewLoader constructs a Loader. view may be nil, in which case every lookup
// goes to the live join.
func NewLoader(view *MaterializedView, live LiveSource, logger *slog.Logger, metrics *Metrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{view: view, live: live, logger: logger, metrics: metrics}
}

// EffectivePermissions returns the user's set. An error means the set could
// not be determined and callers must deny.
func (l *Loader) EffectivePermissions(ctx context.Context, userID int64) (Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.view != nil {
		// An empty view entry may predate a fresh assignment, so only a
		// non-empty hit short-circuits.
		if set, ok := l.view.Lookup(userID); ok && set.Len() > 0 {
			l.metrics.observeLookup("view")
			return set, nil
		}
	}
	l.metrics.observeLookup("live")
	names, err := l.live.UserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: load permissions for user %d: %w", userID, err)
	}
	return parseSet(l.logger, userID, names), nil
}

var _ PermissionSource = (*Loader)(nil)
