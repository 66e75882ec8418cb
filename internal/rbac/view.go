package rbac

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxStaleness bounds how old a view snapshot may be before lookups miss.
const DefaultMaxStaleness = 15 * time.Minute

type snapshot struct {
	builtAt time.Time
	perms   map[int64]Set
}

// MaterializedView serves effective permission sets from an in-memory copy of
// user_effective_permissions. Readers never block on a refresh.
type MaterializedView struct {
	source       ViewSource
	logger       *slog.Logger
	bus          Bus
	metrics      *Metrics
	maxStaleness time.Duration
	now          func() time.Time

	group   singleflight.Group
	current atomic.Pointer[snapshot]
}

// ViewOption configures a MaterializedView.
type ViewOption func(*MaterializedView)

// WithBus publishes refreshes on bus.
func WithBus(bus Bus) ViewOption {
	return func(v *MaterializedView) { v.bus = bus }
}

// WithMaxStaleness overrides DefaultMaxStaleness.
func WithMaxStaleness(d time.Duration) ViewOption {
	return func(v *MaterializedView) {
		if d > 0 {
			v.maxStaleness = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ViewOption {
	return func(v *MaterializedView) { v.now = now }
}

// WithViewMetrics records refresh outcomes.
func WithViewMetrics(m *Metrics) ViewOption {
	return func(v *MaterializedView) { v.metrics = m }
}

// NewMaterializedView constructs an empty view. Call Reload or Refresh to populate it.
func NewMaterializedView(source ViewSource, logger *slog.Logger, opts ...ViewOption) *MaterializedView {
	if logger == nil {
		logger = slog.Default()
	}
	v := &MaterializedView{
		source:       source,
		logger:       logger,
		maxStaleness: DefaultMaxStaleness,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh rebuilds the database view, reloads the snapshot and notifies peers.
// Concurrent callers share one rebuild.
func (v *MaterializedView) Refresh(ctx context.Context) error {
	start := v.now()
	_, err, _ := v.group.Do("refresh", func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not abort it.
		ctx := context.WithoutCancel(ctx)
		if err := v.source.RefreshMaterialized(ctx); err != nil {
			return nil, err
		}
		if err := v.load(ctx); err != nil {
			return nil, err
		}
		if v.bus != nil {
			if err := v.bus.Publish(ctx); err != nil {
				v.logger.Warn("rbac view publish", slog.Any("error", err))
			}
		}
		return nil, nil
	})
	v.metrics.observeRefresh(v.now().Sub(start), err)
	if err != nil {
		v.logger.Error("rbac view refresh", slog.Any("error", err))
		return err
	}
	return nil
}

// RequestRefresh implements Refresher.
func (v *MaterializedView) RequestRefresh(ctx context.Context) error {
	return v.Refresh(ctx)
}

// Reload re-reads the database view without rebuilding it.
func (v *MaterializedView) Reload(ctx context.Context) error {
	_, err, _ := v.group.Do("reload", func() (interface{}, error) {
		return nil, v.load(context.WithoutCancel(ctx))
	})
	return err
}

func (v *MaterializedView) load(ctx context.Context) error {
	rows, err := v.source.LoadMaterialized(ctx)
	if err != nil {
		return err
	}
	grouped := make(map[int64][]string)
	for _, row := range rows {
		grouped[row.UserID] = append(grouped[row.UserID], row.Permission)
	}
	perms := make(map[int64]Set, len(grouped))
	for userID, names := range grouped {
		perms[userID] = parseSet(v.logger, userID, names)
	}
	v.current.Store(&snapshot{builtAt: v.now(), perms: perms})
	v.logger.Debug("rbac view loaded", slog.Int("users", len(perms)), slog.Int("rows", len(rows)))
	return nil
}

// Lookup returns the user's set from the snapshot. ok is false when no
// snapshot exists, the snapshot is stale, or the user has no row.
func (v *MaterializedView) Lookup(userID int64) (Set, bool) {
	snap := v.current.Load()
	if snap == nil || v.now().Sub(snap.builtAt) > v.maxStaleness {
		return nil, false
	}
	set, ok := snap.perms[userID]
	return set, ok
}

// BuiltAt reports when the current snapshot was loaded.
func (v *MaterializedView) BuiltAt() time.Time {
	if snap := v.current.Load(); snap != nil {
		return snap.builtAt
	}
	return time.Time{}
}

// Stale reports whether lookups currently miss because of age.
func (v *MaterializedView) Stale() bool {
	snap := v.current.Load()
	return snap == nil || v.now().Sub(snap.builtAt) > v.maxStaleness
}

// Watch reloads the snapshot whenever the bus reports a refresh elsewhere.
func (v *MaterializedView) Watch(ctx context.Context) error {
	if v.bus == nil {
		return nil
	}
	return v.bus.Listen(ctx, func(ctx context.Context) {
		if err := v.Reload(ctx); err != nil {
			v.logger.Warn("rbac view reload", slog.Any("error", err))
		}
	})
}

var _ Refresher = (*MaterializedView)(nil)
