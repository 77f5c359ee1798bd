package capabilities

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/groupgate/groupgate/internal/platform/db"
	"github.com/groupgate/groupgate/internal/shared"
)

// Repository provides PostgreSQL backed persistence for capabilities.
type Repository interface {
	Get(ctx context.Context, id int64) (*Capability, error)
	GetByLabel(ctx context.Context, label string) (*Capability, error)
	List(ctx context.Context) ([]Capability, error)
	Create(ctx context.Context, capability Capability) (int64, error)
	Update(ctx context.Context, capability Capability) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const capabilityColumns = `id, label, class, object, name, description, created_at`

func (r *repository) Get(ctx context.Context, id int64) (*Capability, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE id = $1`, id)
	return scanCapability(row)
}

func (r *repository) GetByLabel(ctx context.Context, label string) (*Capability, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+capabilityColumns+` FROM capabilities WHERE label = $1`, label)
	return scanCapability(row)
}

func (r *repository) List(ctx context.Context) ([]Capability, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+capabilityColumns+` FROM capabilities ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Capability
	for rows.Next() {
		var c Capability
		if err := rows.Scan(&c.ID, &c.Label, &c.Class, &c.Object, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *repository) Create(ctx context.Context, capability Capability) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO capabilities (label, class, object, name, description) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		capability.Label, capability.Class, capability.Object, capability.Name, capability.Description,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.ErrDuplicateLabel
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, capability Capability) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE capabilities SET label = $2, class = $3, object = $4, name = $5, description = $6 WHERE id = $1`,
		capability.ID, capability.Label, capability.Class, capability.Object, capability.Name, capability.Description,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicateLabel
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the capability and its group links and direct grants.
func (r *repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM group_capabilities WHERE capability_id = $1`, id); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_capabilities WHERE capability_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM capabilities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanCapability(row pgx.Row) (*Capability, error) {
	var c Capability
	err := row.Scan(&c.ID, &c.Label, &c.Class, &c.Object, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
