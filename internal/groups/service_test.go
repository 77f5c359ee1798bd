package groups

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/shared"
)

type mockRepository struct {
	groups  map[int64]*Group
	members map[int64][]int64 // group id -> user ids
	items   map[int64][]int64 // group id -> item ids
	nextID  int64

	lockCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		groups:  make(map[int64]*Group),
		members: make(map[int64][]int64),
		items:   make(map[int64][]int64),
		nextID:  1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	// The mock has no rollback: tests assert atomicity by checking that the
	// service mutates nothing before a validation that can fail.
	return fn(ctx, m)
}

func (m *mockRepository) AcquireHierarchyLock(ctx context.Context) error {
	m.lockCalls++
	return nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (m *mockRepository) GetByName(ctx context.Context, name string) (*Group, error) {
	for _, g := range m.groups {
		if g.Name == name {
			copied := *g
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, req ListGroupsRequest) ([]Group, error) {
	var out []Group
	for _, g := range m.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (m *mockRepository) Create(ctx context.Context, group Group) (int64, error) {
	if _, err := m.GetByName(ctx, group.Name); err == nil {
		return 0, shared.ErrDuplicateName
	}
	if group.ParentID != nil {
		if _, ok := m.groups[*group.ParentID]; !ok {
			return 0, shared.ErrInvalidParent
		}
	}
	group.ID = m.nextID
	group.CreatedAt = time.Now()
	m.nextID++
	m.groups[group.ID] = &group
	return group.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, group Group) error {
	current, ok := m.groups[group.ID]
	if !ok {
		return shared.ErrNotFound
	}
	group.CreatedAt = current.CreatedAt
	m.groups[group.ID] = &group
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.groups[id]; !ok {
		return shared.ErrNotFound
	}
	for _, g := range m.groups {
		if g.ParentID != nil && *g.ParentID == id {
			g.ParentID = nil
		}
	}
	delete(m.members, id)
	delete(m.items, id)
	delete(m.groups, id)
	return nil
}

func (m *mockRepository) ChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error) {
	var out []int64
	for _, parent := range parentIDs {
		for _, g := range m.groups {
			if g.ParentID != nil && *g.ParentID == parent {
				out = append(out, g.ID)
			}
		}
	}
	return out, nil
}

func (m *mockRepository) Count(ctx context.Context) (int64, error) {
	return int64(len(m.groups)), nil
}

func (m *mockRepository) MemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	seen := make(map[int64]struct{})
	var out []int64
	for _, groupID := range groupIDs {
		for _, userID := range m.members[groupID] {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			out = append(out, userID)
		}
	}
	return out, nil
}

func (m *mockRepository) TaggedItemIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	var out []int64
	for _, groupID := range groupIDs {
		out = append(out, m.items[groupID]...)
	}
	return out, nil
}

type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) kinds() []events.Kind {
	out := make([]events.Kind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestService(repo *mockRepository) (*Service, *capturePublisher) {
	pub := &capturePublisher{}
	return NewService(repo, pub, nil), pub
}

func TestCreateGroup(t *testing.T) {
	repo := newMockRepository()
	svc, pub := newTestService(repo)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "  Editors  ", Description: " staff "})
	require.NoError(t, err)
	assert.Equal(t, "Editors", group.Name)
	assert.Equal(t, "staff", group.Description)
	require.Len(t, pub.events, 1)
	assert.Equal(t, events.KindGroupCreated, pub.events[0].Kind)
	assert.Equal(t, group.ID, pub.events[0].GroupID)

	_, err = svc.CreateGroup(ctx, CreateGroupRequest{Name: "Editors"})
	assert.True(t, errors.Is(err, shared.ErrDuplicateName))

	_, err = svc.CreateGroup(ctx, CreateGroupRequest{Name: "   "})
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCreateGroupUnderMissingParent(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	missing := int64(99)
	_, err := svc.CreateGroup(context.Background(), CreateGroupRequest{Name: "Orphans", ParentID: &missing})
	assert.True(t, errors.Is(err, shared.ErrInvalidParent))
}

func TestUpdateGroupRejectsCycleAtomically(t *testing.T) {
	repo := newMockRepository()
	svc, pub := newTestService(repo)
	ctx := context.Background()

	root, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "Root"})
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "Child", ParentID: &root.ID})
	require.NoError(t, err)
	pub.events = nil

	newName := "Renamed Root"
	_, err = svc.UpdateGroup(ctx, root.ID, UpdateGroupRequest{
		Name:      &newName,
		SetParent: true,
		ParentID:  &child.ID,
	})
	assert.True(t, errors.Is(err, shared.ErrCycle))
	assert.Empty(t, pub.events, "a rejected update publishes nothing")

	// The name change must not have survived the rejected parent change.
	current, err := svc.GetGroup(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "Root", current.Name)
	assert.Equal(t, 1, repo.lockCalls, "cycle validation runs under the hierarchy lock")
}

func TestUpdateGroupParentChange(t *testing.T) {
	repo := newMockRepository()
	svc, pub := newTestService(repo)
	ctx := context.Background()

	a, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "A"})
	require.NoError(t, err)
	b, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "B", ParentID: &a.ID})
	require.NoError(t, err)
	c, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "C"})
	require.NoError(t, err)
	repo.members[b.ID] = []int64{10, 11}
	pub.events = nil

	updated, err := svc.UpdateGroup(ctx, b.ID, UpdateGroupRequest{SetParent: true, ParentID: &c.ID})
	require.NoError(t, err)
	require.NotNil(t, updated.ParentID)
	assert.Equal(t, c.ID, *updated.ParentID)

	require.Equal(t, []events.Kind{events.KindGroupUpdated, events.KindGroupParentChanged}, pub.kinds())
	parentEvent := pub.events[1]
	assert.Equal(t, []int64{b.ID}, parentEvent.AffectedGroupIDs)
	assert.ElementsMatch(t, []int64{10, 11}, parentEvent.AffectedUserIDs)
}

func TestUpdateGroupSameParentSkipsValidation(t *testing.T) {
	repo := newMockRepository()
	svc, pub := newTestService(repo)
	ctx := context.Background()

	a, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "A"})
	require.NoError(t, err)
	b, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "B", ParentID: &a.ID})
	require.NoError(t, err)
	pub.events = nil

	_, err = svc.UpdateGroup(ctx, b.ID, UpdateGroupRequest{SetParent: true, ParentID: &a.ID})
	require.NoError(t, err)
	assert.Zero(t, repo.lockCalls)
	assert.Equal(t, []events.Kind{events.KindGroupUpdated}, pub.kinds())
}

func TestDeleteGroup(t *testing.T) {
	repo := newMockRepository()
	svc, pub := newTestService(repo)
	ctx := context.Background()

	parent, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "Parent"})
	require.NoError(t, err)
	child, err := svc.CreateGroup(ctx, CreateGroupRequest{Name: "Child", ParentID: &parent.ID})
	require.NoError(t, err)
	repo.members[parent.ID] = []int64{7}
	repo.members[child.ID] = []int64{8}
	repo.items[parent.ID] = []int64{100, 101}
	pub.events = nil

	require.NoError(t, svc.DeleteGroup(ctx, parent.ID))

	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.Equal(t, events.KindGroupDeleted, event.Kind)
	assert.Equal(t, parent.ID, event.GroupID)
	assert.ElementsMatch(t, []int64{parent.ID, child.ID}, event.AffectedGroupIDs)
	assert.ElementsMatch(t, []int64{7, 8}, event.AffectedUserIDs)
	assert.ElementsMatch(t, []int64{100, 101}, event.AffectedItemIDs)

	// The child survives, detached.
	orphan, err := svc.GetGroup(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentID)
}

func TestDeleteReservedGroupRefused(t *testing.T) {
	repo := newMockRepository()
	svc, pub := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeed(ctx))
	seeded, err := svc.GetGroupByName(ctx, ReservedGroupName)
	require.NoError(t, err)
	require.True(t, seeded.IsSystem)
	pub.events = nil

	err = svc.DeleteGroup(ctx, seeded.ID)
	assert.True(t, errors.Is(err, shared.ErrReserved))
	assert.Empty(t, pub.events)

	_, err = svc.GetGroupByName(ctx, ReservedGroupName)
	assert.NoError(t, err)
}

func TestEnsureSeedIdempotent(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeed(ctx))
	require.NoError(t, svc.EnsureSeed(ctx))

	count := 0
	for _, g := range repo.groups {
		if g.Name == ReservedGroupName {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
