package groups

import (
	"context"
	"fmt"

	"github.com/groupgate/groupgate/internal/shared"
)

// HierarchySource exposes the child-direction reads the validator needs.
type HierarchySource interface {
	// ChildIDs returns the ids of all groups whose parent is in parentIDs.
	ChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error)
	// Count returns the total number of groups in the store.
	Count(ctx context.Context) (int64, error)
}

// SuccessorSet computes every group reachable from groupID in the child
// direction, groupID included. The fixed-point loop is bounded by the total
// group count: on an intact forest the bound is never the stopping
// condition, but it keeps the traversal finite if the acyclicity invariant
// has ever been violated by a defect elsewhere.
func SuccessorSet(ctx context.Context, src HierarchySource, groupID int64) (map[int64]struct{}, error) {
	total, err := src.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("groups: count: %w", err)
	}

	set := map[int64]struct{}{groupID: {}}
	frontier := []int64{groupID}
	for i := int64(0); i < total && len(frontier) > 0; i++ {
		children, err := src.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("groups: child ids: %w", err)
		}
		frontier = frontier[:0]
		for _, id := range children {
			if _, seen := set[id]; seen {
				continue
			}
			set[id] = struct{}{}
			frontier = append(frontier, id)
		}
	}
	return set, nil
}

// ValidateParent decides whether group may adopt parentID as its parent.
// A nil parent (detach) is always valid. Returns shared.ErrCycle when the
// proposed parent is the group itself or one of its descendants.
func ValidateParent(ctx context.Context, src HierarchySource, groupID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if *parentID == groupID {
		return fmt.Errorf("group %d cannot be its own parent: %w", groupID, shared.ErrCycle)
	}
	successors, err := SuccessorSet(ctx, src, groupID)
	if err != nil {
		return err
	}
	if _, ok := successors[*parentID]; ok {
		return fmt.Errorf("group %d is a descendant of group %d: %w", *parentID, groupID, shared.ErrCycle)
	}
	return nil
}
