// Package closure computes the derived relation sets: group ancestry,
// deep user memberships and inherited capability unions. Results are
// memoized in Redis with explicit, event-driven invalidation.
package closure

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the read-only view of the relation store the resolver traverses.
// It never mutates anything.
type Store interface {
	DirectGroupIDs(ctx context.Context, userID int64) ([]int64, error)
	DirectCapabilityIDs(ctx context.Context, userID int64) ([]int64, error)
	GroupCapabilityIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
	ParentIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
	ChildIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
	MemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
	GroupCount(ctx context.Context) (int64, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore builds the PostgreSQL backed read path.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) DirectGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT group_id FROM user_groups WHERE user_id = $1`, userID)
}

func (s *pgStore) DirectCapabilityIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT capability_id FROM user_capabilities WHERE user_id = $1`, userID)
}

func (s *pgStore) GroupCapabilityIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return s.queryIDs(ctx, `SELECT DISTINCT capability_id FROM group_capabilities WHERE group_id = ANY($1)`, groupIDs)
}

func (s *pgStore) ParentIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return s.queryIDs(ctx, `SELECT DISTINCT parent_id FROM groups WHERE id = ANY($1) AND parent_id IS NOT NULL`, groupIDs)
}

func (s *pgStore) ChildIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return s.queryIDs(ctx, `SELECT id FROM groups WHERE parent_id = ANY($1)`, groupIDs)
}

func (s *pgStore) MemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	return s.queryIDs(ctx, `SELECT DISTINCT user_id FROM user_groups WHERE group_id = ANY($1)`, groupIDs)
}

func (s *pgStore) GroupCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM groups`).Scan(&count)
	return count, err
}

func (s *pgStore) queryIDs(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, arg)
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
