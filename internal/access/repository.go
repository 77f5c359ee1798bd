// Package access is the decision point gating content items by required
// groups. An item with no tags is unrestricted; with tags, a reader needs
// direct or inherited membership in at least one of them.
package access

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groupgate/groupgate/internal/platform/db"
	"github.com/groupgate/groupgate/internal/shared"
)

// Repository persists the required-group tags of content items. The items
// themselves are owned by an external collaborator; only the tags live here.
type Repository interface {
	RequiredGroupIDs(ctx context.Context, itemID int64) ([]int64, error)
	ReplaceRequiredGroups(ctx context.Context, itemID int64, groupIDs []int64) error
	DeleteItem(ctx context.Context, itemID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) RequiredGroupIDs(ctx context.Context, itemID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT group_id FROM item_groups WHERE item_id = $1 ORDER BY group_id`, itemID)
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

// ReplaceRequiredGroups swaps the item's tag set atomically.
func (r *repository) ReplaceRequiredGroups(ctx context.Context, itemID int64, groupIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM item_groups WHERE item_id = $1`, itemID); err != nil {
			return err
		}
		for _, groupID := range groupIDs {
			_, err := tx.Exec(ctx, `INSERT INTO item_groups (item_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, itemID, groupID)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return shared.ErrNotFound
				}
				return err
			}
		}
		return nil
	})
}

func (r *repository) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM item_groups WHERE item_id = $1`, itemID)
	return err
}
