package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditLoggerRejectsUnknownEntity(t *testing.T) {
	logger := NewAuditLogger(nil)

	err := logger.Record(context.Background(), AuditLog{
		Action:   "group.created",
		Entity:   Entity("invoice"),
		EntityID: "1",
	})
	assert.ErrorContains(t, err, "unknown")
}

func TestAuditLoggerRequiresActionAndEntityID(t *testing.T) {
	logger := NewAuditLogger(nil)

	err := logger.Record(context.Background(), AuditLog{Entity: EntityGroup, EntityID: "1"})
	assert.Error(t, err)

	err = logger.Record(context.Background(), AuditLog{Action: "group.created", Entity: EntityGroup})
	assert.Error(t, err)
}
