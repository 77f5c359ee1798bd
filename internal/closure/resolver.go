package closure

import (
	"context"
	"fmt"
	"sort"
)

// Resolver computes the derived sets by read-only fixed-point traversal.
// Missing users and groups resolve to empty sets, never errors; the cache
// layer is the only caller on the hot path.
type Resolver struct {
	store Store
}

// NewResolver builds a Resolver over the store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// GroupAncestry returns the group plus every transitive parent.
func (r *Resolver) GroupAncestry(ctx context.Context, groupID int64) ([]int64, error) {
	set, err := r.closeOverParents(ctx, []int64{groupID})
	if err != nil {
		return nil, err
	}
	return sortedIDs(set), nil
}

// UserGroupsDeep returns every group the user belongs to directly plus
// every ancestor of each.
func (r *Resolver) UserGroupsDeep(ctx context.Context, userID int64) ([]int64, error) {
	direct, err := r.store.DirectGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("closure: direct groups: %w", err)
	}
	set, err := r.closeOverParents(ctx, direct)
	if err != nil {
		return nil, err
	}
	return sortedIDs(set), nil
}

// GroupCapabilitiesDeep returns a group's own capabilities plus those
// inherited from its ancestry.
func (r *Resolver) GroupCapabilitiesDeep(ctx context.Context, groupID int64) ([]int64, error) {
	ancestry, err := r.GroupAncestry(ctx, groupID)
	if err != nil {
		return nil, err
	}
	caps, err := r.store.GroupCapabilityIDs(ctx, ancestry)
	if err != nil {
		return nil, fmt.Errorf("closure: group capabilities: %w", err)
	}
	return sortedUnique(caps), nil
}

// UserCapabilitiesDeep returns every capability granted directly to the
// user plus every capability granted to any group in the user's deep
// membership set.
func (r *Resolver) UserCapabilitiesDeep(ctx context.Context, userID int64) ([]int64, error) {
	groups, err := r.UserGroupsDeep(ctx, userID)
	if err != nil {
		return nil, err
	}
	inherited, err := r.store.GroupCapabilityIDs(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("closure: inherited capabilities: %w", err)
	}
	direct, err := r.store.DirectCapabilityIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("closure: direct capabilities: %w", err)
	}
	return sortedUnique(append(inherited, direct...)), nil
}

// closeOverParents is the shared fixed-point loop in the parent direction.
// It is bounded by the total group count so it stays finite even if the
// acyclicity invariant has been violated by a defect elsewhere.
func (r *Resolver) closeOverParents(ctx context.Context, seed []int64) (map[int64]struct{}, error) {
	set := make(map[int64]struct{}, len(seed))
	frontier := make([]int64, 0, len(seed))
	for _, id := range seed {
		if _, seen := set[id]; !seen {
			set[id] = struct{}{}
			frontier = append(frontier, id)
		}
	}
	if len(frontier) == 0 {
		return set, nil
	}

	total, err := r.store.GroupCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("closure: group count: %w", err)
	}
	for i := int64(0); i < total && len(frontier) > 0; i++ {
		parents, err := r.store.ParentIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("closure: parent ids: %w", err)
		}
		frontier = frontier[:0]
		for _, id := range parents {
			if _, seen := set[id]; seen {
				continue
			}
			set[id] = struct{}{}
			frontier = append(frontier, id)
		}
	}
	return set, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedUnique(ids []int64) []int64 {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return sortedIDs(set)
}
