package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversInRegistrationOrder(t *testing.T) {
	var order []string
	first := PublisherFunc(func(ctx context.Context, event Event) error {
		order = append(order, "first")
		return nil
	})
	second := PublisherFunc(func(ctx context.Context, event Event) error {
		order = append(order, "second")
		return nil
	})

	fanout := NewFanout(first)
	fanout.Register(second)
	fanout.Register(nil)

	require.NoError(t, fanout.Publish(context.Background(), New(KindMemberAdded)))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestFanoutStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	reached := false
	fanout := NewFanout(
		PublisherFunc(func(ctx context.Context, event Event) error { return boom }),
		PublisherFunc(func(ctx context.Context, event Event) error { reached = true; return nil }),
	)

	err := fanout.Publish(context.Background(), New(KindGroupDeleted))
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached)
}

func TestNewEvent(t *testing.T) {
	event := New(KindGroupCreated)
	assert.Equal(t, KindGroupCreated, event.Kind)
	assert.NotZero(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
}
