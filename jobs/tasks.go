package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/groupgate/groupgate/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists one relation mutation into the audit trail.
	TaskAuditRecord = "authz:audit_record"
	// TaskClosureWarmup precomputes derived sets for a list of users.
	TaskClosureWarmup = "authz:closure_warmup"
)

// AuditRecordPayload describes one audit trail entry.
type AuditRecordPayload struct {
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditRecordTask constructs an Asynq task.
func NewAuditRecordTask(payload AuditRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// AuditRecordJob writes enqueued audit entries into audit_logs.
type AuditRecordJob struct {
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewAuditRecordJob constructs an AuditRecordJob.
func NewAuditRecordJob(audit *shared.AuditLogger, logger *slog.Logger) *AuditRecordJob {
	return &AuditRecordJob{audit: audit, logger: logger}
}

// Handle processes TaskAuditRecord tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return j.audit.Record(ctx, shared.AuditLog{
		ActorID:    payload.ActorID,
		Action:     payload.Action,
		Entity:     shared.Entity(payload.Entity),
		EntityID:   payload.EntityID,
		Meta:       payload.Meta,
		OccurredAt: payload.OccurredAt,
	})
}

// ClosureWarmupPayload selects the users whose sets get precomputed.
type ClosureWarmupPayload struct {
	UserIDs []int64 `json:"user_ids"`
}

// NewClosureWarmupTask constructs an Asynq task.
func NewClosureWarmupTask(userIDs []int64) (*asynq.Task, error) {
	data, err := json.Marshal(ClosureWarmupPayload{UserIDs: userIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskClosureWarmup, data), nil
}

// MembershipWarmer is the slice of the lookup layer the warmup job needs.
type MembershipWarmer interface {
	UserGroupsDeep(ctx context.Context, userID int64) ([]int64, error)
	UserCapabilitiesDeep(ctx context.Context, userID int64) ([]int64, error)
}

// ClosureWarmupJob populates the cache for frequently queried users so the
// first request after a cold start does not pay the resolver cost.
type ClosureWarmupJob struct {
	warmer MembershipWarmer
	logger *slog.Logger
}

// NewClosureWarmupJob constructs a ClosureWarmupJob.
func NewClosureWarmupJob(warmer MembershipWarmer, logger *slog.Logger) *ClosureWarmupJob {
	return &ClosureWarmupJob{warmer: warmer, logger: logger}
}

// Handle processes TaskClosureWarmup tasks. A failure on one user does not
// abort the rest of the batch.
func (j *ClosureWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ClosureWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	for _, userID := range payload.UserIDs {
		if _, err := j.warmer.UserGroupsDeep(ctx, userID); err != nil {
			j.logger.Warn("warmup user groups", slog.Int64("user_id", userID), slog.Any("error", err))
			continue
		}
		if _, err := j.warmer.UserCapabilitiesDeep(ctx, userID); err != nil {
			j.logger.Warn("warmup user capabilities", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	j.logger.Info("closure warmup finished", slog.Int("users", len(payload.UserIDs)))
	return nil
}
