package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermissionIsExactMembership(t *testing.T) {
	set := NewSet(Own(ResourceBooking, ActionCreate))

	assert.True(t, HasPermission(set, Own(ResourceBooking, ActionCreate)))
	assert.False(t, HasPermission(set, All(ResourceBooking, ActionCreate)))
	assert.False(t, HasPermission(set, Own(ResourceBooking, ActionRead)))
	assert.False(t, HasPermission(NewSet(), Own(ResourceBooking, ActionCreate)))
}

func TestHasAnyHasAllEmptyListDenies(t *testing.T) {
	set := NewSet(Own(ResourceBooking, ActionCreate), All(ResourceUser, ActionRead))

	assert.False(t, HasAny(set))
	assert.False(t, HasAll(set))
	assert.False(t, HasAny(NewSet()))
	assert.False(t, HasAll(NewSet()))
}

func TestHasAnyHasAll(t *testing.T) {
	a := Own(ResourceBooking, ActionCreate)
	b := All(ResourceUser, ActionRead)
	c := All(ResourceContract, ActionArchive)
	set := NewSet(a, b)

	tests := []struct {
		name     string
		required []Permission
		any, all bool
	}{
		{"single held", []Permission{a}, true, true},
		{"both held", []Permission{a, b}, true, true},
		{"one missing", []Permission{a, c}, true, false},
		{"none held", []Permission{c}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.any, HasAny(set, tt.required...))
			assert.Equal(t, tt.all, HasAll(set, tt.required...))
		})
	}
}

func TestCanPerformAction(t *testing.T) {
	assert.True(t, CanPerformAction(NewSet(Own(ResourceContract, ActionRead)), ResourceContract, ActionRead))
	assert.True(t, CanPerformAction(NewSet(All(ResourceContract, ActionRead)), ResourceContract, ActionRead))
	assert.False(t, CanPerformAction(NewSet(All(ResourceContract, ActionUpdate)), ResourceContract, ActionRead))
}

func TestRequirementCheck(t *testing.T) {
	own := Own(ResourceUser, ActionUpdate)
	all := All(ResourceUser, ActionUpdate)

	ok, missing, err := AnyOf(own, all).Check(NewSet(all))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, missing)

	ok, missing, err = AnyOf(own, all).Check(NewSet())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []Permission{own, all}, missing)

	ok, missing, err = AllOf(own, all).Check(NewSet(own))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []Permission{all}, missing)
}

func TestRequirementEmptyFailsClosed(t *testing.T) {
	ok, _, err := AnyOf().Check(NewSet(All(ResourceSystem, ActionManage)))
	require.ErrorIs(t, err, ErrEmptyRequirement)
	assert.False(t, ok)

	ok, _, err = AllOf().Check(NewSet(All(ResourceSystem, ActionManage)))
	require.ErrorIs(t, err, ErrEmptyRequirement)
	assert.False(t, ok)
}

func TestRequirementDedupes(t *testing.T) {
	p := Own(ResourceBooking, ActionRead)
	assert.Len(t, AllOf(p, p, p).Permissions, 1)
}

func TestSetSliceSorted(t *testing.T) {
	set := NewSet(All(ResourceUser, ActionRead), Own(ResourceBooking, ActionCreate))
	assert.Equal(t, []string{"booking:create:own", "user:read:all"}, Strings(set.Slice()))

	other := NewSet(Own(ResourceFile, ActionUpload))
	set.Union(other)
	assert.Equal(t, 3, set.Len())
}
