package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/shared"
)

// Service orchestrates group CRUD and hierarchy mutations. Every committed
// mutation is announced on the publisher so the cache layer can restore
// coherence before the call returns.
type Service struct {
	repo      Repository
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// CreateGroup inserts a new group. The parent, when given, must exist; a
// fresh group has no descendants, so no cycle check is needed on create.
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("group name required: %w", shared.ErrValidation)
	}
	group := Group{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		ParentID:    req.ParentID,
		CreatorID:   req.CreatorID,
	}
	id, err := s.repo.Create(ctx, group)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	event := events.New(events.KindGroupCreated)
	event.GroupID = id
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, err
	}
	return created, nil
}

// GetGroup fetches a group by id.
func (s *Service) GetGroup(ctx context.Context, id int64) (*Group, error) {
	return s.repo.Get(ctx, id)
}

// GetGroupByName fetches a group by its unique, case-sensitive name.
func (s *Service) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	return s.repo.GetByName(ctx, name)
}

// ListGroups returns groups matching the filter.
func (s *Service) ListGroups(ctx context.Context, req ListGroupsRequest) ([]Group, error) {
	return s.repo.List(ctx, req)
}

// UpdateGroup applies a partial update atomically: a rejected parent change
// rolls back the name and description changes with it. Parent changes are
// serialised through the hierarchy advisory lock and re-validated against
// the latest committed state inside the transaction.
func (s *Service) UpdateGroup(ctx context.Context, id int64, req UpdateGroupRequest) (*Group, error) {
	var updated Group
	var parentChanged bool
	var affectedGroups []int64
	var affectedUsers []int64

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		next := *current
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("group name required: %w", shared.ErrValidation)
			}
			next.Name = name
		}
		if req.Description != nil {
			next.Description = strings.TrimSpace(*req.Description)
		}
		if req.SetParent && !sameParent(current.ParentID, req.ParentID) {
			if err := tx.AcquireHierarchyLock(ctx); err != nil {
				return err
			}
			if req.ParentID != nil {
				if _, err := tx.Get(ctx, *req.ParentID); err != nil {
					if errors.Is(err, shared.ErrNotFound) {
						return shared.ErrInvalidParent
					}
					return err
				}
			}
			if err := ValidateParent(ctx, tx, id, req.ParentID); err != nil {
				return err
			}
			next.ParentID = req.ParentID
			parentChanged = true
			// The subtree and its members are captured now: their cached
			// ancestry and closures are stale once the new parent commits.
			successors, err := SuccessorSet(ctx, tx, id)
			if err != nil {
				return err
			}
			affectedGroups = sortedIDs(successors)
			affectedUsers, err = tx.MemberIDs(ctx, affectedGroups)
			if err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := events.New(events.KindGroupUpdated)
	event.GroupID = id
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, err
	}
	if parentChanged {
		event := events.New(events.KindGroupParentChanged)
		event.GroupID = id
		event.AffectedGroupIDs = affectedGroups
		event.AffectedUserIDs = affectedUsers
		if err := s.publisher.Publish(ctx, event); err != nil {
			return nil, err
		}
	}
	return &updated, nil
}

// DeleteGroup removes a group. Children are detached and every relation row
// referencing the group is dropped. The system-reserved group is protected.
// The former descendant set and the affected members are captured before
// the delete so invalidation can still reach them afterwards.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	var affectedGroups []int64
	var affectedUsers []int64
	var affectedItems []int64

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		group, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if group.IsSystem {
			return fmt.Errorf("group %q cannot be deleted: %w", group.Name, shared.ErrReserved)
		}
		successors, err := SuccessorSet(ctx, tx, id)
		if err != nil {
			return err
		}
		affectedGroups = sortedIDs(successors)
		affectedUsers, err = tx.MemberIDs(ctx, affectedGroups)
		if err != nil {
			return err
		}
		affectedItems, err = tx.TaggedItemIDs(ctx, []int64{id})
		if err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	event := events.New(events.KindGroupDeleted)
	event.GroupID = id
	event.AffectedGroupIDs = affectedGroups
	event.AffectedUserIDs = affectedUsers
	event.AffectedItemIDs = affectedItems
	return s.publisher.Publish(ctx, event)
}

// EnsureSeed creates the reserved "all registered users" group when missing.
func (s *Service) EnsureSeed(ctx context.Context) error {
	_, err := s.repo.GetByName(ctx, ReservedGroupName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	_, err = s.repo.Create(ctx, Group{
		Name:        ReservedGroupName,
		Description: "All registered users.",
		IsSystem:    true,
	})
	if err != nil && !errors.Is(err, shared.ErrDuplicateName) {
		return err
	}
	if s.logger != nil {
		s.logger.Info("seeded reserved group", slog.String("name", ReservedGroupName))
	}
	return nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
