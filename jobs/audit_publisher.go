package jobs

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/shared"
)

// AuditPublisher turns committed mutation events into queued audit entries.
// It is registered behind the cache invalidators, and an enqueue failure is
// logged rather than surfaced: the mutation already committed and the audit
// trail is best effort.
type AuditPublisher struct {
	client *Client
	logger *slog.Logger
}

// NewAuditPublisher constructs an AuditPublisher.
func NewAuditPublisher(client *Client, logger *slog.Logger) *AuditPublisher {
	return &AuditPublisher{client: client, logger: logger}
}

// Publish implements events.Publisher.
func (p *AuditPublisher) Publish(ctx context.Context, event events.Event) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload := AuditRecordPayload{
		Action:     string(event.Kind),
		OccurredAt: event.OccurredAt,
		Meta:       map[string]any{"event_id": event.ID.String()},
	}
	if principal := shared.PrincipalFromContext(ctx); principal != nil {
		payload.ActorID = principal.UserID
	}

	switch event.Kind {
	case events.KindGroupCreated, events.KindGroupUpdated,
		events.KindGroupParentChanged, events.KindGroupDeleted:
		payload.Entity = string(shared.EntityGroup)
		payload.EntityID = formatID(event.GroupID)
	case events.KindCapabilityCreated, events.KindCapabilityUpdated, events.KindCapabilityDeleted:
		payload.Entity = string(shared.EntityCapability)
		payload.EntityID = formatID(event.CapabilityID)
	case events.KindGroupCapabilityLinked, events.KindGroupCapabilityUnlinked:
		payload.Entity = string(shared.EntityGroup)
		payload.EntityID = formatID(event.GroupID)
		payload.Meta["capability_id"] = event.CapabilityID
	case events.KindMemberAdded, events.KindMemberRemoved:
		payload.Entity = string(shared.EntityUser)
		payload.EntityID = formatID(event.UserID)
		payload.Meta["group_id"] = event.GroupID
	case events.KindDirectGranted, events.KindDirectRevoked:
		payload.Entity = string(shared.EntityUser)
		payload.EntityID = formatID(event.UserID)
		payload.Meta["capability_id"] = event.CapabilityID
	case events.KindItemGroupsChanged, events.KindItemDeleted:
		payload.Entity = string(shared.EntityItem)
		payload.EntityID = formatID(event.ItemID)
	default:
		return nil
	}

	if _, err := p.client.EnqueueAuditRecord(ctx, payload); err != nil {
		p.logger.Warn("enqueue audit record", slog.String("action", payload.Action), slog.Any("error", err))
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
