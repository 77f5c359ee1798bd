// Package events carries mutation events from the relation stores to the
// cache invalidators and the optional audit sink.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the relation mutation that occurred.
type Kind string

const (
	KindGroupCreated       Kind = "group.created"
	KindGroupUpdated       Kind = "group.updated"
	KindGroupParentChanged Kind = "group.parent_changed"
	KindGroupDeleted       Kind = "group.deleted"

	KindCapabilityCreated Kind = "capability.created"
	KindCapabilityUpdated Kind = "capability.updated"
	KindCapabilityDeleted Kind = "capability.deleted"

	KindGroupCapabilityLinked   Kind = "group_capability.linked"
	KindGroupCapabilityUnlinked Kind = "group_capability.unlinked"
	KindMemberAdded             Kind = "user_group.added"
	KindMemberRemoved           Kind = "user_group.removed"
	KindDirectGranted           Kind = "user_capability.granted"
	KindDirectRevoked           Kind = "user_capability.revoked"

	KindItemGroupsChanged Kind = "item.groups_changed"
	KindItemDeleted       Kind = "item.deleted"
)

// Event describes a single committed mutation. Identifier fields are zero
// when they do not apply to the kind.
type Event struct {
	ID           uuid.UUID
	Kind         Kind
	GroupID      int64
	CapabilityID int64
	UserID       int64
	ItemID       int64
	// AffectedGroupIDs carries group ids captured before a destructive
	// mutation (the deleted group and its former descendants).
	AffectedGroupIDs []int64
	// AffectedUserIDs carries user ids whose derived sets were seeded by a
	// deleted relation, captured before the delete.
	AffectedUserIDs []int64
	// AffectedItemIDs carries content item ids whose required-group tags
	// referenced a deleted group, captured before the delete.
	AffectedItemIDs []int64
	OccurredAt      time.Time
}

// New constructs an event with a fresh identifier and timestamp.
func New(kind Kind) Event {
	return Event{ID: uuid.New(), Kind: kind, OccurredAt: time.Now().UTC()}
}

// Publisher receives events after the originating mutation has committed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Fanout delivers each event to every registered publisher in order. Cache
// invalidators must be registered ahead of observational sinks so coherence
// is restored before anything else reacts to the mutation.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a fanout over the given publishers.
func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

// Register appends a publisher. Registration happens during startup wiring,
// before any mutation can publish.
func (f *Fanout) Register(p Publisher) {
	if p != nil {
		f.publishers = append(f.publishers, p)
	}
}

// Publish delivers the event to all publishers, stopping on the first error.
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	for _, p := range f.publishers {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Nop discards all events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
