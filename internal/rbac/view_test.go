package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T, userID int64, perms ...Permission) *memStore {
	t.Helper()
	ctx := context.Background()
	store := newMemStore()
	roleID, err := store.UpsertRole(ctx, "Basic Client", CategoryClient, "")
	require.NoError(t, err)
	for _, p := range perms {
		id, err := store.UpsertPermission(ctx, p, "", "")
		require.NoError(t, err)
		require.NoError(t, store.AttachPermission(ctx, roleID, id))
	}
	require.NoError(t, store.AssignRole(ctx, userID, roleID, nil))
	return store
}

func TestViewLookupBeforeBuildMisses(t *testing.T) {
	view := NewMaterializedView(newMemStore(), nil)
	_, ok := view.Lookup(1)
	assert.False(t, ok)
	assert.True(t, view.Stale())
	assert.True(t, view.BuiltAt().IsZero())
}

func TestViewStaleSnapshotMisses(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	view := NewMaterializedView(store, nil,
		WithClock(func() time.Time { return now }),
		WithMaxStaleness(time.Minute))

	require.NoError(t, view.Refresh(context.Background()))
	set, ok := view.Lookup(1)
	require.True(t, ok)
	assert.True(t, set.Contains(Own(ResourceBooking, ActionCreate)))

	now = now.Add(2 * time.Minute)
	_, ok = view.Lookup(1)
	assert.False(t, ok)
	assert.True(t, view.Stale())
}

func TestViewSkipsMalformedRows(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	store.extraRows = []UserPermissionRow{
		{UserID: 1, Permission: "booking:teleport:own"},
		{UserID: 1, Permission: "legacy.permission"},
	}
	view := NewMaterializedView(store, nil)

	require.NoError(t, view.Refresh(context.Background()))
	set, ok := view.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 1, set.Len())
}

func TestViewConcurrentRefreshCoalesces(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	store.refreshDelay = 100 * time.Millisecond
	view := NewMaterializedView(store, nil)

	const callers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- view.Refresh(context.Background())
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Less(t, store.refreshCalls.Load(), int32(callers))
	_, ok := view.Lookup(1)
	assert.True(t, ok)
}

func TestViewRefreshSurvivesCallerCancel(t *testing.T) {
	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	view := NewMaterializedView(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, view.Refresh(ctx))
	_, ok := view.Lookup(1)
	assert.True(t, ok)
}

func TestViewBumpReloadsPeer(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := seededStore(t, 1, Own(ResourceBooking, ActionCreate))
	writer := NewMaterializedView(store, nil, WithBus(NewRedisBus(newClient(), "", nil)))
	reader := NewMaterializedView(store, nil, WithBus(NewRedisBus(newClient(), "", nil)))
	require.NoError(t, reader.Watch(ctx))

	_, ok := reader.Lookup(1)
	require.False(t, ok)

	require.NoError(t, writer.Refresh(ctx))

	require.Eventually(t, func() bool {
		_, ok := reader.Lookup(1)
		return ok
	}, 2*time.Second, 20*time.Millisecond)
	// Only the writer rebuilt the database view.
	assert.Equal(t, int32(1), store.refreshCalls.Load())

	ver, err := NewRedisBus(newClient(), "", nil).Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
}
