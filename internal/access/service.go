package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/groupgate/groupgate/internal/closure"
	"github.com/groupgate/groupgate/internal/events"
)

// bulkConcurrency caps the fan-out of the bulk readable-items query.
const bulkConcurrency = 8

// Memberships is the closure query the decision point depends on.
type Memberships interface {
	UserGroupsDeep(ctx context.Context, userID int64) ([]int64, error)
}

// TrustSource reports the privileged-override flag for an actor. When set,
// the actor bypasses group gating entirely, including actors who are
// members of no group.
type TrustSource interface {
	IsPrivileged(ctx context.Context, userID int64) (bool, error)
}

// Service answers "can user U read item I". Decisions are cached per
// (user, item) with tracking sets on both axes so either side can be
// invalidated without a keyspace scan.
type Service struct {
	repo        Repository
	memberships Memberships
	trust       TrustSource
	cache       *closure.Cache
	publisher   events.Publisher
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, memberships Memberships, trust TrustSource, cache *closure.Cache, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:        repo,
		memberships: memberships,
		trust:       trust,
		cache:       cache,
		publisher:   publisher,
		logger:      logger,
	}
}

// DecisionKey keys the cached access decision for a (user, item) pair.
func DecisionKey(userID, itemID int64) string {
	return fmt.Sprintf("authz:%s:u%d:i%d", closure.KindDecision, userID, itemID)
}

// UserDecisionsKey keys the tracking set of a user's cached decisions.
func UserDecisionsKey(userID int64) string {
	return fmt.Sprintf("authz:%s:user:%d", closure.KindDecision, userID)
}

// ItemDecisionsKey keys the tracking set of an item's cached decisions.
func ItemDecisionsKey(itemID int64) string {
	return fmt.Sprintf("authz:%s:item:%d", closure.KindDecision, itemID)
}

// CanRead reports whether the user may read the item. The privileged
// override short-circuits before any set computation; untagged items are
// readable by everyone; otherwise ANY-semantics intersection decides.
func (s *Service) CanRead(ctx context.Context, userID, itemID int64) (bool, error) {
	if s.trust != nil {
		privileged, err := s.trust.IsPrivileged(ctx, userID)
		if err != nil {
			return false, err
		}
		if privileged {
			return true, nil
		}
	}
	tracking := []string{UserDecisionsKey(userID), ItemDecisionsKey(itemID)}
	return s.cache.FetchBool(ctx, closure.KindDecision, DecisionKey(userID, itemID), tracking, func(ctx context.Context) (bool, error) {
		return s.decide(ctx, userID, itemID)
	})
}

func (s *Service) decide(ctx context.Context, userID, itemID int64) (bool, error) {
	required, err := s.repo.RequiredGroupIDs(ctx, itemID)
	if err != nil {
		return false, err
	}
	if len(required) == 0 {
		return true, nil
	}
	memberships, err := s.memberships.UserGroupsDeep(ctx, userID)
	if err != nil {
		return false, err
	}
	memberSet := make(map[int64]struct{}, len(memberships))
	for _, id := range memberships {
		memberSet[id] = struct{}{}
	}
	for _, id := range required {
		if _, ok := memberSet[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

// ReadableItemIDs filters the candidate items down to those the user may
// read, preserving candidate order.
func (s *Service) ReadableItemIDs(ctx context.Context, userID int64, candidateItemIDs []int64) ([]int64, error) {
	if s.trust != nil {
		privileged, err := s.trust.IsPrivileged(ctx, userID)
		if err != nil {
			return nil, err
		}
		if privileged {
			return append([]int64(nil), candidateItemIDs...), nil
		}
	}

	readable := make([]bool, len(candidateItemIDs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, itemID := range candidateItemIDs {
		g.Go(func() error {
			ok, err := s.CanRead(gctx, userID, itemID)
			if err != nil {
				return err
			}
			mu.Lock()
			readable[i] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]int64, 0, len(candidateItemIDs))
	for i, itemID := range candidateItemIDs {
		if readable[i] {
			result = append(result, itemID)
		}
	}
	return result, nil
}

// GetRequiredGroups returns the item's required-group tags.
func (s *Service) GetRequiredGroups(ctx context.Context, itemID int64) ([]int64, error) {
	return s.repo.RequiredGroupIDs(ctx, itemID)
}

// SetRequiredGroups replaces the item's required-group tags and drops the
// item's cached decisions.
func (s *Service) SetRequiredGroups(ctx context.Context, itemID int64, groupIDs []int64) error {
	unique := make([]int64, 0, len(groupIDs))
	seen := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if err := s.repo.ReplaceRequiredGroups(ctx, itemID, unique); err != nil {
		return err
	}
	event := events.New(events.KindItemGroupsChanged)
	event.ItemID = itemID
	return s.publisher.Publish(ctx, event)
}

// ItemDeleted handles the collaborator's deletion notification: the item's
// tags and cached decisions are dropped.
func (s *Service) ItemDeleted(ctx context.Context, itemID int64) error {
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	event := events.New(events.KindItemDeleted)
	event.ItemID = itemID
	return s.publisher.Publish(ctx, event)
}

// Publish implements events.Publisher: it keeps the decision cache coherent
// with relation and tag mutations.
func (s *Service) Publish(ctx context.Context, event events.Event) error {
	switch event.Kind {
	case events.KindMemberAdded, events.KindMemberRemoved,
		events.KindDirectGranted, events.KindDirectRevoked:
		return s.cache.InvalidateSet(ctx, closure.KindDecision, UserDecisionsKey(event.UserID))

	case events.KindGroupParentChanged:
		for _, userID := range event.AffectedUserIDs {
			if err := s.cache.InvalidateSet(ctx, closure.KindDecision, UserDecisionsKey(userID)); err != nil {
				return err
			}
		}
		return nil

	case events.KindGroupDeleted:
		for _, userID := range event.AffectedUserIDs {
			if err := s.cache.InvalidateSet(ctx, closure.KindDecision, UserDecisionsKey(userID)); err != nil {
				return err
			}
		}
		for _, itemID := range event.AffectedItemIDs {
			if err := s.cache.InvalidateSet(ctx, closure.KindDecision, ItemDecisionsKey(itemID)); err != nil {
				return err
			}
		}
		return nil

	case events.KindItemGroupsChanged, events.KindItemDeleted:
		return s.cache.InvalidateSet(ctx, closure.KindDecision, ItemDecisionsKey(event.ItemID))
	}
	return nil
}
