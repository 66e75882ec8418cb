package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memStore
	view    *MaterializedView
	service *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newMemStore()
	s.view = NewMaterializedView(s.store, nil)
	s.service = NewService(s.store, s.view, nil)
}

func (s *ServiceTestSuite) seedRole(name string, perms ...Permission) int64 {
	t := s.T()
	role, err := s.service.UpsertRole(s.ctx, RoleInput{Name: name, Category: "client"})
	require.NoError(t, err)
	for _, p := range perms {
		id, err := s.service.UpsertPermission(s.ctx, p, "", "")
		require.NoError(t, err)
		require.NoError(t, s.service.AttachPermission(s.ctx, role.ID, id))
	}
	return role.ID
}

func (s *ServiceTestSuite) TestUpsertRoleIsIdempotent() {
	t := s.T()
	first, err := s.service.UpsertRole(s.ctx, RoleInput{Name: "Basic Client", Category: "client", Description: "v1"})
	require.NoError(t, err)
	second, err := s.service.UpsertRole(s.ctx, RoleInput{Name: "Basic Client", Category: "client", Description: "v2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v2", second.Description)
	counts, err := s.service.Counts(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Roles)
}

func (s *ServiceTestSuite) TestAttachPermissionIsIdempotent() {
	t := s.T()
	roleID := s.seedRole("Basic Client")
	permID, err := s.service.UpsertPermission(s.ctx, Own(ResourceBooking, ActionCreate), "", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.service.AttachPermission(s.ctx, roleID, permID))
	}
	counts, err := s.service.Counts(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Attachments)
}

func (s *ServiceTestSuite) TestAttachUnknownPermissionIsNotFound() {
	roleID := s.seedRole("Basic Client")
	err := s.service.AttachPermission(s.ctx, roleID, 999)
	require.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *ServiceTestSuite) TestUpsertRoleValidation() {
	t := s.T()
	_, err := s.service.UpsertRole(s.ctx, RoleInput{Name: "  ", Category: "client"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.service.UpsertRole(s.ctx, RoleInput{Name: "Guest", Category: "visitor"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func (s *ServiceTestSuite) TestViewMatchesUnionAfterRevoke() {
	t := s.T()
	bookings := s.seedRole("Basic Client", Own(ResourceBooking, ActionCreate), Own(ResourceBooking, ActionRead))
	contracts := s.seedRole("Premium Client", Own(ResourceContract, ActionCreate), Own(ResourceBooking, ActionRead))

	require.NoError(t, s.service.AssignRole(s.ctx, 10, bookings, nil))
	require.NoError(t, s.service.AssignRole(s.ctx, 10, contracts, nil))

	set, ok := s.view.Lookup(10)
	require.True(t, ok)
	assert.Equal(t, []string{"booking:create:own", "booking:read:own", "contract:create:own"}, Strings(set.Slice()))

	require.NoError(t, s.service.RevokeRole(s.ctx, 10, bookings))

	set, ok = s.view.Lookup(10)
	require.True(t, ok)
	assert.Equal(t, []string{"booking:read:own", "contract:create:own"}, Strings(set.Slice()))
}

func (s *ServiceTestSuite) TestRetiredRoleGrantsNothing() {
	t := s.T()
	roleID := s.seedRole("Content Moderator", All(ResourceFile, ActionDelete))
	require.NoError(t, s.service.AssignRole(s.ctx, 5, roleID, nil))

	require.NoError(t, s.service.RetireRole(s.ctx, roleID))

	live, err := s.service.LivePermissions(s.ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, live.Len())
	_, ok := s.view.Lookup(5)
	assert.False(t, ok)

	err = s.service.AssignRole(s.ctx, 6, roleID, nil)
	require.ErrorIs(t, err, ErrNotFound)

	// Upserting by name revives it.
	_, err = s.service.UpsertRole(s.ctx, RoleInput{Name: "Content Moderator", Category: "admin"})
	require.NoError(t, err)
	live, err = s.service.LivePermissions(s.ctx, 5)
	require.NoError(t, err)
	assert.True(t, live.Contains(All(ResourceFile, ActionDelete)))
}

func (s *ServiceTestSuite) TestDetachPermission() {
	t := s.T()
	roleID := s.seedRole("Support Agent", All(ResourceUser, ActionRead))
	require.NoError(t, s.service.AssignRole(s.ctx, 3, roleID, nil))

	detail, err := s.service.GetRole(s.ctx, roleID)
	require.NoError(t, err)
	require.Len(t, detail.Permissions, 1)

	require.NoError(t, s.service.DetachPermission(s.ctx, roleID, detail.Permissions[0].ID))
	// Detaching again is a no-op.
	require.NoError(t, s.service.DetachPermission(s.ctx, roleID, detail.Permissions[0].ID))

	live, err := s.service.LivePermissions(s.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, live.Len())
}

func (s *ServiceTestSuite) TestMutationSucceedsWhenRefreshFails() {
	t := s.T()
	roleID := s.seedRole("Basic Client", Own(ResourceBooking, ActionCreate))
	s.store.errRefresh = errors.New("database unavailable")

	require.NoError(t, s.service.AssignRole(s.ctx, 11, roleID, nil))

	live, err := s.service.LivePermissions(s.ctx, 11)
	require.NoError(t, err)
	assert.True(t, live.Contains(Own(ResourceBooking, ActionCreate)))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestServiceWithoutRefresher(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, int32(0), store.refreshCalls.Load())
}
