package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entity names the kind of record a mutation touched. The audit trail only
// accepts the four entities the authorization model knows about.
type Entity string

const (
	EntityGroup      Entity = "group"
	EntityCapability Entity = "capability"
	EntityUser       Entity = "user"
	EntityItem       Entity = "item"
)

func (e Entity) valid() bool {
	switch e {
	case EntityGroup, EntityCapability, EntityUser, EntityItem:
		return true
	}
	return false
}

// AuditLog is one entry of the mutation audit trail. Action carries the
// mutation event kind verbatim; OccurredAt is the event timestamp, not the
// time the entry was persisted.
type AuditLog struct {
	ActorID    int64
	Action     string
	Entity     Entity
	EntityID   string
	Meta       map[string]any
	OccurredAt time.Time
}

// AuditLogger writes entries into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry. An entry without an action or a known entity is
// rejected before touching the database.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.EntityID == "" {
		return errors.New("audit log requires action and entity_id")
	}
	if !log.Entity.valid() {
		return fmt.Errorf("audit log entity %q unknown", log.Entity)
	}
	occurredAt := log.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ActorID, log.Action, string(log.Entity), log.EntityID, metaJSON, occurredAt)
	return err
}
