package relations

import (
	"context"
	"log/slog"

	"github.com/groupgate/groupgate/internal/events"
)

// Service applies idempotent relation mutations. Linking twice or unlinking
// a missing link is a no-op success; mutation events fire only when a row
// actually changed.
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

// Link attaches a capability to a group.
func (s *Service) Link(ctx context.Context, groupID, capabilityID int64) error {
	changed, err := s.repo.Link(ctx, groupID, capabilityID)
	if err != nil {
		return err
	}
	return s.publishGroupCapability(ctx, events.KindGroupCapabilityLinked, groupID, capabilityID, changed)
}

// Unlink detaches a capability from a group.
func (s *Service) Unlink(ctx context.Context, groupID, capabilityID int64) error {
	changed, err := s.repo.Unlink(ctx, groupID, capabilityID)
	if err != nil {
		return err
	}
	return s.publishGroupCapability(ctx, events.KindGroupCapabilityUnlinked, groupID, capabilityID, changed)
}

// AddMember puts a user into a group.
func (s *Service) AddMember(ctx context.Context, userID, groupID int64) error {
	changed, err := s.repo.AddMember(ctx, userID, groupID)
	if err != nil {
		return err
	}
	return s.publishUserGroup(ctx, events.KindMemberAdded, userID, groupID, changed)
}

// RemoveMember takes a user out of a group.
func (s *Service) RemoveMember(ctx context.Context, userID, groupID int64) error {
	changed, err := s.repo.RemoveMember(ctx, userID, groupID)
	if err != nil {
		return err
	}
	return s.publishUserGroup(ctx, events.KindMemberRemoved, userID, groupID, changed)
}

// GrantDirect attaches a capability directly to a user.
func (s *Service) GrantDirect(ctx context.Context, userID, capabilityID int64) error {
	changed, err := s.repo.GrantDirect(ctx, userID, capabilityID)
	if err != nil {
		return err
	}
	return s.publishUserCapability(ctx, events.KindDirectGranted, userID, capabilityID, changed)
}

// RevokeDirect removes a direct capability grant from a user.
func (s *Service) RevokeDirect(ctx context.Context, userID, capabilityID int64) error {
	changed, err := s.repo.RevokeDirect(ctx, userID, capabilityID)
	if err != nil {
		return err
	}
	return s.publishUserCapability(ctx, events.KindDirectRevoked, userID, capabilityID, changed)
}

// GroupCapabilityIDs returns a group's own capability ids (not inherited).
func (s *Service) GroupCapabilityIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return s.repo.GroupCapabilityIDs(ctx, groupID)
}

// UserGroupIDs returns a user's direct memberships (not inherited).
func (s *Service) UserGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.UserGroupIDs(ctx, userID)
}

// UserCapabilityIDs returns a user's direct capability grants.
func (s *Service) UserCapabilityIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.UserCapabilityIDs(ctx, userID)
}

// MemberIDs returns the direct members of a group.
func (s *Service) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return s.repo.MemberIDs(ctx, groupID)
}

func (s *Service) publishGroupCapability(ctx context.Context, kind events.Kind, groupID, capabilityID int64, changed bool) error {
	if !changed {
		return nil
	}
	event := events.New(kind)
	event.GroupID = groupID
	event.CapabilityID = capabilityID
	return s.publisher.Publish(ctx, event)
}

func (s *Service) publishUserGroup(ctx context.Context, kind events.Kind, userID, groupID int64, changed bool) error {
	if !changed {
		return nil
	}
	event := events.New(kind)
	event.UserID = userID
	event.GroupID = groupID
	return s.publisher.Publish(ctx, event)
}

func (s *Service) publishUserCapability(ctx context.Context, kind events.Kind, userID, capabilityID int64, changed bool) error {
	if !changed {
		return nil
	}
	event := events.New(kind)
	event.UserID = userID
	event.CapabilityID = capabilityID
	return s.publisher.Publish(ctx, event)
}
