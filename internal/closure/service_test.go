package closure

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupgate/groupgate/internal/capabilities"
	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/observability"
	"github.com/groupgate/groupgate/internal/shared"
)

type mockDirectory struct {
	byLabel map[string]*capabilities.Capability
}

func (m *mockDirectory) GetCapabilityByLabel(ctx context.Context, label string) (*capabilities.Capability, error) {
	c, ok := m.byLabel[label]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func newCachedService(t *testing.T, store Store, directory CapabilityDirectory) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, observability.NewMetrics())
	return NewService(store, cache, directory, nil)
}

func TestUserGroupsDeepIsCached(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, 1, store.directGroupCalls)

	ids, err = svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, 1, store.directGroupCalls, "second read must be served from cache")
}

func TestEmptySetIsCachedNotMissed(t *testing.T) {
	store := chainStore()
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.UserGroupsDeep(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, store.directGroupCalls)

	ids, err = svc.UserGroupsDeep(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, store.directGroupCalls, "an empty result is a valid cache entry")
}

func TestMembershipEventInvalidatesUserSets(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	_, err := svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	_, err = svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)

	// The user leaves group 3; the next reads must recompute.
	store.userGroups[7] = nil
	event := events.New(events.KindMemberRemoved)
	event.UserID = 7
	event.GroupID = 3
	require.NoError(t, svc.Publish(ctx, event))

	ids, err := svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 2, store.directGroupCalls)
}

func TestDirectGrantVisibleImmediately(t *testing.T) {
	store := chainStore()
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, ids)

	store.userCaps[7] = []int64{30}
	event := events.New(events.KindDirectGranted)
	event.UserID = 7
	event.CapabilityID = 30
	require.NoError(t, svc.Publish(ctx, event))

	ids, err = svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{30}, ids)
}

func TestLinkEventInvalidatesSubtreeClosures(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.GroupCapabilitiesDeep(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)

	// A capability lands on the root; the whole subtree inherits it.
	store.groupCaps[1] = []int64{10}
	event := events.New(events.KindGroupCapabilityLinked)
	event.GroupID = 1
	event.CapabilityID = 10
	require.NoError(t, svc.Publish(ctx, event))

	ids, err = svc.GroupCapabilitiesDeep(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)

	ids, err = svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids, "members of descendants see the new capability")
}

func TestParentChangeInvalidatesAncestry(t *testing.T) {
	store := chainStore()
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.GroupAncestry(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	// Group 1 moves under group 4.
	store.parents[1] = 4
	event := events.New(events.KindGroupParentChanged)
	event.GroupID = 1
	require.NoError(t, svc.Publish(ctx, event))

	ids, err = svc.GroupAncestry(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestGroupDeletedEventReachesFormerMembers(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	// Group 3 is gone; the event carries the pre-delete affected sets
	// because the rows no longer exist to derive them from.
	store.userGroups[7] = nil
	delete(store.parents, 3)
	event := events.New(events.KindGroupDeleted)
	event.GroupID = 3
	event.AffectedGroupIDs = []int64{3}
	event.AffectedUserIDs = []int64{7}
	require.NoError(t, svc.Publish(ctx, event))

	ids, err = svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCapabilityDeletedClearsCapabilityClosures(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	store.groupCaps[1] = []int64{10}
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	ids, err := svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)
	ids, err = svc.GroupCapabilitiesDeep(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)

	store.groupCaps[1] = nil
	event := events.New(events.KindCapabilityDeleted)
	event.CapabilityID = 10
	require.NoError(t, svc.Publish(ctx, event))

	ids, err = svc.UserCapabilitiesDeep(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = svc.GroupCapabilitiesDeep(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUserHasCapability(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	store.groupCaps[1] = []int64{10}
	store.userCaps[7] = []int64{30}
	directory := &mockDirectory{byLabel: map[string]*capabilities.Capability{
		"read_gated_content": {ID: 10, Label: "read_gated_content"},
	}}
	svc := newCachedService(t, store, directory)
	ctx := context.Background()

	has, err := svc.UserHasCapability(ctx, 7, "read_gated_content")
	require.NoError(t, err)
	assert.True(t, has, "inherited capability resolves by label")

	has, err = svc.UserHasCapability(ctx, 7, "30")
	require.NoError(t, err)
	assert.True(t, has, "direct capability resolves by id")

	has, err = svc.UserHasCapability(ctx, 7, "no_such_label")
	require.NoError(t, err, "an unknown capability is absent, not an error")
	assert.False(t, has)

	has, err = svc.UserHasCapability(ctx, 8, "read_gated_content")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestResetCacheForcesReload(t *testing.T) {
	store := chainStore()
	store.userGroups[7] = []int64{3}
	svc := newCachedService(t, store, nil)
	ctx := context.Background()

	_, err := svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	_, err = svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, store.directGroupCalls)

	require.NoError(t, svc.ResetCache(ctx))

	_, err = svc.UserGroupsDeep(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, store.directGroupCalls, "a flushed entry must be recomputed")
}
