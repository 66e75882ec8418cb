package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderPrefersView(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	view := NewMaterializedView(store, nil)
	require.NoError(t, view.Refresh(context.Background()))

	// A live failure is irrelevant while the view answers.
	store.errUserPermissions = errors.New("live join unavailable")
	loader := NewLoader(view, store, nil, nil)

	set, err := loader.EffectivePermissions(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, set.Contains(Own(ResourceBooking, ActionCreate)))
}

func TestLoaderFallsBackToLiveJoin(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	// View never built.
	loader := NewLoader(NewMaterializedView(store, nil), store, nil, nil)

	set, err := loader.EffectivePermissions(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, set.Contains(Own(ResourceBooking, ActionCreate)))
}

func TestLoaderSeesAssignmentNewerThanView(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	view := NewMaterializedView(store, nil)
	require.NoError(t, view.Refresh(ctx))

	// Assigned after the last refresh: absent from the snapshot.
	require.NoError(t, store.AssignRole(ctx, 2, 1, nil))
	loader := NewLoader(view, store, nil, nil)

	set, err := loader.EffectivePermissions(ctx, 2)
	require.NoError(t, err)
	assert.True(t, set.Contains(Own(ResourceBooking, ActionCreate)))
}

func TestLoaderServesRevokedSetUntilStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	view := NewMaterializedView(store, nil,
		WithMaxStaleness(15*time.Minute),
		WithClock(func() time.Time { return now }))
	require.NoError(t, view.Refresh(ctx))

	failing := RefresherFunc(func(context.Context) error { return errors.New("refresh down") })
	require.NoError(t, NewService(store, failing, nil).RevokeRole(ctx, 1, 1))
	loader := NewLoader(view, store, nil, nil)

	set, err := loader.EffectivePermissions(ctx, 1)
	require.NoError(t, err)
	assert.True(t, set.Contains(Own(ResourceBooking, ActionCreate)), "snapshot still answers inside the bound")

	now = now.Add(16 * time.Minute)
	set, err = loader.EffectivePermissions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestLoaderFailsClosed(t *testing.T) {
	store := newMemStore()
	store.errUserPermissions = errors.New("connection reset")
	loader := NewLoader(nil, store, nil, nil)

	set, err := loader.EffectivePermissions(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, set)
}

func TestLoaderCancelledContext(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	loader := NewLoader(nil, store, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.EffectivePermissions(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoaderUnknownUserHasEmptySet(t *testing.T) {
	loader := NewLoader(nil, newMemStore(), nil, nil)
	set, err := loader.EffectivePermissions(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}
