package closure

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/groupgate/groupgate/internal/capabilities"
	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/groups"
	"github.com/groupgate/groupgate/internal/shared"
)

// CapabilityDirectory resolves capability labels to ids for the
// user_has_capability query.
type CapabilityDirectory interface {
	GetCapabilityByLabel(ctx context.Context, label string) (*capabilities.Capability, error)
}

// Service is the cache-coherent lookup layer over the resolver. Reads go
// through the cache; mutation events arriving via Publish drop exactly the
// entries whose correct value may have changed.
type Service struct {
	store     Store
	resolver  *Resolver
	cache     *Cache
	directory CapabilityDirectory
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(store Store, cache *Cache, directory CapabilityDirectory, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		resolver:  NewResolver(store),
		cache:     cache,
		directory: directory,
		logger:    logger,
	}
}

// UserGroupsDeep returns the user's direct memberships closed under
// parent-of.
func (s *Service) UserGroupsDeep(ctx context.Context, userID int64) ([]int64, error) {
	return s.cache.FetchIDs(ctx, KindUserGroups, UserGroupsKey(userID), func(ctx context.Context) ([]int64, error) {
		return s.resolver.UserGroupsDeep(ctx, userID)
	})
}

// UserCapabilitiesDeep returns the user's direct grants plus every
// capability inherited through the deep membership set.
func (s *Service) UserCapabilitiesDeep(ctx context.Context, userID int64) ([]int64, error) {
	return s.cache.FetchIDs(ctx, KindUserCapabilities, UserCapabilitiesKey(userID), func(ctx context.Context) ([]int64, error) {
		return s.resolver.UserCapabilitiesDeep(ctx, userID)
	})
}

// GroupAncestry returns the group plus every transitive parent.
func (s *Service) GroupAncestry(ctx context.Context, groupID int64) ([]int64, error) {
	return s.cache.FetchIDs(ctx, KindGroupAncestry, GroupAncestryKey(groupID), func(ctx context.Context) ([]int64, error) {
		return s.resolver.GroupAncestry(ctx, groupID)
	})
}

// GroupCapabilitiesDeep returns a group's own capabilities plus the
// inherited ones.
func (s *Service) GroupCapabilitiesDeep(ctx context.Context, groupID int64) ([]int64, error) {
	return s.cache.FetchIDs(ctx, KindGroupCapabilities, GroupCapabilitiesKey(groupID), func(ctx context.Context) ([]int64, error) {
		return s.resolver.GroupCapabilitiesDeep(ctx, groupID)
	})
}

// UserHasCapability reports whether the capability, given as a decimal id
// or a label, is in the user's deep capability set. An unknown capability
// is simply absent: the answer is false, not an error.
func (s *Service) UserHasCapability(ctx context.Context, userID int64, capability string) (bool, error) {
	capabilityID, err := s.capabilityID(ctx, capability)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	caps, err := s.UserCapabilitiesDeep(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range caps {
		if id == capabilityID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) capabilityID(ctx context.Context, capability string) (int64, error) {
	if id, err := strconv.ParseInt(capability, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	if s.directory == nil {
		return 0, shared.ErrNotFound
	}
	found, err := s.directory.GetCapabilityByLabel(ctx, capability)
	if err != nil {
		return 0, err
	}
	return found.ID, nil
}

// ResetCache drops every cached derived set and decision. It is the
// operational escape hatch for a cache suspected stale; the next read of
// each entry pays the resolver cost again.
func (s *Service) ResetCache(ctx context.Context) error {
	return s.cache.Flush(ctx)
}

// Publish implements events.Publisher: it is the cache invalidation hook
// wired between the relation stores and any observational sinks.
func (s *Service) Publish(ctx context.Context, event events.Event) error {
	switch event.Kind {
	case events.KindMemberAdded, events.KindMemberRemoved,
		events.KindDirectGranted, events.KindDirectRevoked:
		return s.invalidateUsers(ctx, event.UserID)

	case events.KindGroupCapabilityLinked, events.KindGroupCapabilityUnlinked:
		return s.invalidateGroupSubtree(ctx, event.GroupID, false)

	case events.KindGroupParentChanged:
		return s.invalidateGroupSubtree(ctx, event.GroupID, true)

	case events.KindGroupDeleted:
		for _, groupID := range event.AffectedGroupIDs {
			if err := s.invalidateGroup(ctx, groupID, true); err != nil {
				return err
			}
		}
		return s.invalidateUsers(ctx, event.AffectedUserIDs...)

	case events.KindCapabilityDeleted:
		// No index maps a capability to the cached sets containing it, so
		// this rare event clears the capability closures wholesale.
		if err := s.cache.InvalidatePattern(ctx, KindUserCapabilities, "authz:"+KindUserCapabilities+":*"); err != nil {
			return err
		}
		return s.cache.InvalidatePattern(ctx, KindGroupCapabilities, "authz:"+KindGroupCapabilities+":*")
	}
	return nil
}

// invalidateGroupSubtree drops the capability closures of the group and its
// descendants, plus the membership closures of every user directly in any
// of them. Descendants are included for strict coherence: their cached
// capability closures embed values inherited from this group.
func (s *Service) invalidateGroupSubtree(ctx context.Context, groupID int64, ancestryChanged bool) error {
	successors, err := groups.SuccessorSet(ctx, hierarchySource{s.store}, groupID)
	if err != nil {
		return err
	}
	affected := make([]int64, 0, len(successors))
	for id := range successors {
		affected = append(affected, id)
		if err := s.invalidateGroup(ctx, id, ancestryChanged); err != nil {
			return err
		}
	}
	members, err := s.store.MemberIDs(ctx, affected)
	if err != nil {
		return err
	}
	return s.invalidateUsers(ctx, members...)
}

func (s *Service) invalidateGroup(ctx context.Context, groupID int64, ancestryChanged bool) error {
	if err := s.cache.Invalidate(ctx, KindGroupCapabilities, GroupCapabilitiesKey(groupID)); err != nil {
		return err
	}
	if ancestryChanged {
		return s.cache.Invalidate(ctx, KindGroupAncestry, GroupAncestryKey(groupID))
	}
	return nil
}

func (s *Service) invalidateUsers(ctx context.Context, userIDs ...int64) error {
	for _, userID := range userIDs {
		if err := s.cache.Invalidate(ctx, KindUserGroups, UserGroupsKey(userID)); err != nil {
			return err
		}
		if err := s.cache.Invalidate(ctx, KindUserCapabilities, UserCapabilitiesKey(userID)); err != nil {
			return err
		}
	}
	return nil
}

type hierarchySource struct {
	store Store
}

func (h hierarchySource) ChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error) {
	return h.store.ChildIDs(ctx, parentIDs)
}

func (h hierarchySource) Count(ctx context.Context) (int64, error) {
	return h.store.GroupCount(ctx)
}
