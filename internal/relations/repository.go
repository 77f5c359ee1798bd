// Package relations owns the three relation pairs of the authorization
// model: group-capability links, user-group memberships and direct
// user-capability grants.
package relations

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groupgate/groupgate/internal/platform/db"
	"github.com/groupgate/groupgate/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the relation pairs.
// Mutations are idempotent: they report whether a row actually changed so
// callers can skip event emission on no-ops.
type Repository interface {
	Link(ctx context.Context, groupID, capabilityID int64) (bool, error)
	Unlink(ctx context.Context, groupID, capabilityID int64) (bool, error)
	AddMember(ctx context.Context, userID, groupID int64) (bool, error)
	RemoveMember(ctx context.Context, userID, groupID int64) (bool, error)
	GrantDirect(ctx context.Context, userID, capabilityID int64) (bool, error)
	RevokeDirect(ctx context.Context, userID, capabilityID int64) (bool, error)

	GroupCapabilityIDs(ctx context.Context, groupID int64) ([]int64, error)
	UserGroupIDs(ctx context.Context, userID int64) ([]int64, error)
	UserCapabilityIDs(ctx context.Context, userID int64) ([]int64, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) upsert(ctx context.Context, query string, a, b int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, query, a, b)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) remove(ctx context.Context, query string, a, b int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, query, a, b)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) Link(ctx context.Context, groupID, capabilityID int64) (bool, error) {
	return r.upsert(ctx, `INSERT INTO group_capabilities (group_id, capability_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, capabilityID)
}

func (r *repository) Unlink(ctx context.Context, groupID, capabilityID int64) (bool, error) {
	return r.remove(ctx, `DELETE FROM group_capabilities WHERE group_id = $1 AND capability_id = $2`, groupID, capabilityID)
}

func (r *repository) AddMember(ctx context.Context, userID, groupID int64) (bool, error) {
	return r.upsert(ctx, `INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, groupID)
}

func (r *repository) RemoveMember(ctx context.Context, userID, groupID int64) (bool, error) {
	return r.remove(ctx, `DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
}

func (r *repository) GrantDirect(ctx context.Context, userID, capabilityID int64) (bool, error) {
	return r.upsert(ctx, `INSERT INTO user_capabilities (user_id, capability_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, capabilityID)
}

func (r *repository) RevokeDirect(ctx context.Context, userID, capabilityID int64) (bool, error) {
	return r.remove(ctx, `DELETE FROM user_capabilities WHERE user_id = $1 AND capability_id = $2`, userID, capabilityID)
}

func (r *repository) GroupCapabilityIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT capability_id FROM group_capabilities WHERE group_id = $1 ORDER BY capability_id`, groupID)
}

func (r *repository) UserGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT group_id FROM user_groups WHERE user_id = $1 ORDER BY group_id`, userID)
}

func (r *repository) UserCapabilityIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT capability_id FROM user_capabilities WHERE user_id = $1 ORDER BY capability_id`, userID)
}

func (r *repository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT user_id FROM user_groups WHERE group_id = $1 ORDER BY user_id`, groupID)
}

func (r *repository) queryIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
