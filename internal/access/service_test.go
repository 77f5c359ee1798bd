package access

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupgate/groupgate/internal/closure"
	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/observability"
)

type mockRepository struct {
	tags  map[int64][]int64 // item id -> required group ids
	calls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{tags: make(map[int64][]int64)}
}

func (m *mockRepository) RequiredGroupIDs(ctx context.Context, itemID int64) ([]int64, error) {
	m.calls++
	return m.tags[itemID], nil
}

func (m *mockRepository) ReplaceRequiredGroups(ctx context.Context, itemID int64, groupIDs []int64) error {
	m.tags[itemID] = groupIDs
	return nil
}

func (m *mockRepository) DeleteItem(ctx context.Context, itemID int64) error {
	delete(m.tags, itemID)
	return nil
}

type mockMemberships struct {
	groups map[int64][]int64 // user id -> deep group ids
	calls  int
}

func (m *mockMemberships) UserGroupsDeep(ctx context.Context, userID int64) ([]int64, error) {
	m.calls++
	return m.groups[userID], nil
}

type mockTrust struct {
	privileged map[int64]bool
	calls      int
}

func (m *mockTrust) IsPrivileged(ctx context.Context, userID int64) (bool, error) {
	m.calls++
	return m.privileged[userID], nil
}

type fixture struct {
	repo        *mockRepository
	memberships *mockMemberships
	trust       *mockTrust
	service     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := closure.NewCache(client, observability.NewMetrics())

	f := &fixture{
		repo:        newMockRepository(),
		memberships: &mockMemberships{groups: make(map[int64][]int64)},
		trust:       &mockTrust{privileged: make(map[int64]bool)},
	}
	// The service hears its own mutation events, as it does behind the
	// application fanout.
	fanout := events.NewFanout()
	f.service = NewService(f.repo, f.memberships, f.trust, cache, fanout, nil)
	fanout.Register(f.service)
	return f
}

func TestCanReadUntaggedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok, "an untagged item is readable by everyone")
	assert.Zero(t, f.memberships.calls, "no membership lookup for untagged items")
}

func TestCanReadAnySemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[1] = []int64{2, 5}
	f.memberships.groups[7] = []int64{3, 5}
	f.memberships.groups[8] = []int64{4}

	ok, err := f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok, "one shared group suffices")

	ok, err = f.service.CanRead(ctx, 8, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.service.CanRead(ctx, 9, 1)
	require.NoError(t, err)
	assert.False(t, ok, "no memberships at all")
}

func TestPrivilegedOverrideShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[1] = []int64{2}
	f.trust.privileged[99] = true

	ok, err := f.service.CanRead(ctx, 99, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, f.memberships.calls, "the override precedes any set computation")
	assert.Zero(t, f.repo.calls)
}

func TestDecisionCachedUntilTagsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[1] = []int64{2}
	f.memberships.groups[7] = []int64{3}

	ok, err := f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.memberships.calls)

	ok, err = f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.memberships.calls, "the denial is served from cache")

	// Re-tagging the item drops its cached decisions.
	require.NoError(t, f.service.SetRequiredGroups(ctx, 1, []int64{3}))

	ok, err = f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, f.memberships.calls)
}

func TestMembershipEventInvalidatesUserDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[1] = []int64{2}

	ok, err := f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	f.memberships.groups[7] = []int64{2}
	event := events.New(events.KindMemberAdded)
	event.UserID = 7
	event.GroupID = 2
	require.NoError(t, f.service.Publish(ctx, event))

	ok, err = f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok, "the new membership must be visible immediately")
}

func TestSetRequiredGroupsDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetRequiredGroups(ctx, 1, []int64{2, 2, 3, 2}))
	ids, err := f.service.GetRequiredGroups(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestReadableItemIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[2] = []int64{9}
	f.repo.tags[3] = []int64{3}
	f.memberships.groups[7] = []int64{3}

	ids, err := f.service.ReadableItemIDs(ctx, 7, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids, "candidate order is preserved")
}

func TestReadableItemIDsPrivileged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[2] = []int64{9}
	f.trust.privileged[99] = true

	ids, err := f.service.ReadableItemIDs(ctx, 99, []int64{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)
	assert.Zero(t, f.repo.calls)
}

func TestItemDeletedDropsTagsAndDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.tags[1] = []int64{2}

	ok, err := f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.service.ItemDeleted(ctx, 1))

	// A recreated item with the same id starts unrestricted.
	ok, err = f.service.CanRead(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
