package capabilities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/shared"
)

// Service orchestrates capability CRUD and guards the reserved read-gate
// token.
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

// CreateCapability inserts a new capability with a unique label.
func (s *Service) CreateCapability(ctx context.Context, req CreateCapabilityRequest) (*Capability, error) {
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, fmt.Errorf("capability label required: %w", shared.ErrValidation)
	}
	id, err := s.repo.Create(ctx, Capability{
		Label:       label,
		Class:       strings.TrimSpace(req.Class),
		Object:      strings.TrimSpace(req.Object),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	event := events.New(events.KindCapabilityCreated)
	event.CapabilityID = id
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, err
	}
	return created, nil
}

// EnsureCapability returns the capability with the given label, creating it
// on demand. Used to import the host's native permission tokens.
func (s *Service) EnsureCapability(ctx context.Context, label string) (*Capability, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("capability label required: %w", shared.ErrValidation)
	}
	existing, err := s.repo.GetByLabel(ctx, label)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	created, err := s.CreateCapability(ctx, CreateCapabilityRequest{Label: label})
	if err != nil && errors.Is(err, shared.ErrDuplicateLabel) {
		// Lost a create race; the other writer's row serves.
		return s.repo.GetByLabel(ctx, label)
	}
	return created, err
}

// GetCapability fetches a capability by id.
func (s *Service) GetCapability(ctx context.Context, id int64) (*Capability, error) {
	return s.repo.Get(ctx, id)
}

// GetCapabilityByLabel fetches a capability by its unique label.
func (s *Service) GetCapabilityByLabel(ctx context.Context, label string) (*Capability, error) {
	return s.repo.GetByLabel(ctx, label)
}

// ListCapabilities returns all capabilities ordered by label.
func (s *Service) ListCapabilities(ctx context.Context) ([]Capability, error) {
	return s.repo.List(ctx)
}

// UpdateCapability applies a partial update. The reserved read-gate token
// keeps its label: relabeling it is refused.
func (s *Service) UpdateCapability(ctx context.Context, id int64, req UpdateCapabilityRequest) (*Capability, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			return nil, fmt.Errorf("capability label required: %w", shared.ErrValidation)
		}
		if current.Label == ReservedReadLabel && label != ReservedReadLabel {
			return nil, fmt.Errorf("capability %q cannot be relabeled: %w", ReservedReadLabel, shared.ErrReserved)
		}
		next.Label = label
	}
	if req.Class != nil {
		next.Class = strings.TrimSpace(*req.Class)
	}
	if req.Object != nil {
		next.Object = strings.TrimSpace(*req.Object)
	}
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	event := events.New(events.KindCapabilityUpdated)
	event.CapabilityID = id
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, err
	}
	return &next, nil
}

// DeleteCapability removes a capability along with its links and grants.
// The reserved read-gate token is protected.
func (s *Service) DeleteCapability(ctx context.Context, id int64) error {
	capability, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if capability.Label == ReservedReadLabel {
		return fmt.Errorf("capability %q cannot be deleted: %w", ReservedReadLabel, shared.ErrReserved)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	event := events.New(events.KindCapabilityDeleted)
	event.CapabilityID = id
	return s.publisher.Publish(ctx, event)
}

// EnsureSeed creates the reserved read-gate capability when missing.
func (s *Service) EnsureSeed(ctx context.Context) error {
	_, err := s.repo.GetByLabel(ctx, ReservedReadLabel)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	_, err = s.repo.Create(ctx, Capability{
		Label:       ReservedReadLabel,
		Description: "Grants read access to group-restricted content.",
	})
	if err != nil && !errors.Is(err, shared.ErrDuplicateLabel) {
		return err
	}
	if s.logger != nil {
		s.logger.Info("seeded reserved capability", slog.String("label", ReservedReadLabel))
	}
	return nil
}
