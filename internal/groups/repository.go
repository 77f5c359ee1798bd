package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groupgate/groupgate/internal/platform/db"
	"github.com/groupgate/groupgate/internal/shared"
)

// hierarchyLockKey serialises validate-then-commit for parent changes. Two
// concurrent reassignments that are each valid against the pre-mutation
// state could jointly close a cycle, so they must not interleave.
const hierarchyLockKey = int64(0x67726f757073) // "groups"

// Repository provides PostgreSQL backed persistence for groups and the
// hierarchy reads used by the validator.
type Repository interface {
	HierarchySource

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	AcquireHierarchyLock(ctx context.Context) error

	Get(ctx context.Context, id int64) (*Group, error)
	GetByName(ctx context.Context, name string) (*Group, error)
	List(ctx context.Context, req ListGroupsRequest) ([]Group, error)
	Create(ctx context.Context, group Group) (int64, error)
	Update(ctx context.Context, group Group) error
	Delete(ctx context.Context, id int64) error
	MemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
	TaggedItemIDs(ctx context.Context, groupIDs []int64) ([]int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// AcquireHierarchyLock takes the transaction-scoped advisory lock guarding
// parent reassignments. Only meaningful inside WithTx; the lock is released
// at commit or rollback.
func (r *repository) AcquireHierarchyLock(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey)
	return err
}

func (r *repository) Get(ctx context.Context, id int64) (*Group, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, description, parent_id, creator_id, is_system, created_at FROM groups WHERE id = $1`, id)
	return scanGroup(row)
}

func (r *repository) GetByName(ctx context.Context, name string) (*Group, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, description, parent_id, creator_id, is_system, created_at FROM groups WHERE name = $1`, name)
	return scanGroup(row)
}

func (r *repository) List(ctx context.Context, req ListGroupsRequest) ([]Group, error) {
	query := `SELECT id, name, description, parent_id, creator_id, is_system, created_at FROM groups`
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.ParentID != nil {
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", argPos))
		args = append(args, *req.ParentID)
		argPos++
	}
	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			query += " AND " + conditions[i]
		}
	}

	sortBy := "id"
	if req.SortBy == "name" {
		sortBy = "name"
	}
	dir := "ASC"
	if req.SortDir == "desc" {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, dir)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ParentID, &g.CreatorID, &g.IsSystem, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (r *repository) Create(ctx context.Context, group Group) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO groups (name, description, parent_id, creator_id, is_system) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		group.Name, group.Description, group.ParentID, group.CreatorID, group.IsSystem,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.ErrDuplicateName
		}
		if db.IsForeignKeyViolation(err) {
			return 0, shared.ErrInvalidParent
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, group Group) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE groups SET name = $2, description = $3, parent_id = $4 WHERE id = $1`,
		group.ID, group.Name, group.Description, group.ParentID,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicateName
		}
		if db.IsForeignKeyViolation(err) {
			return shared.ErrInvalidParent
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the group and cascades: children are detached, and every
// capability link, membership and item tag referencing the group goes away.
func (r *repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE groups SET parent_id = NULL WHERE parent_id = $1`, id); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM group_capabilities WHERE group_id = $1`, id); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM user_groups WHERE group_id = $1`, id); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM item_groups WHERE group_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM groups WHERE parent_id = ANY($1)`, parentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM groups`).Scan(&count)
	return count, err
}

func (r *repository) MemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT DISTINCT user_id FROM user_groups WHERE group_id = ANY($1)`, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *repository) TaggedItemIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT DISTINCT item_id FROM item_groups WHERE group_id = ANY($1)`, groupIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.ParentID, &g.CreatorID, &g.IsSystem, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
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
