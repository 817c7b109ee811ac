package playbooks

import (
	"context"
	"errors"
	"fmt"

	"crm_pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opList    = "playbooks.repository.list"
	opGetByID = "playbooks.repository.get_by_id"
)

// ErrNotFound is returned when a playbook does not exist.
var ErrNotFound = errors.New("playbook not found")

// Repository reads playbook definitions from Postgres. Steps are stored as
// a jsonb array to preserve their configured order.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new playbook repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all playbook definitions.
func (r *Repository) List(ctx context.Context) ([]Playbook, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, stage_ids, steps
		FROM playbooks
		ORDER BY name
	`)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list playbooks failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	var result []Playbook
	for rows.Next() {
		var p Playbook
		if err := rows.Scan(&p.ID, &p.Name, &p.StageIDs, &p.Steps); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan playbook failed: %v", err)).WithOp(opList)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list playbooks failed: %v", err)).WithOp(opList)
	}

	return result, nil
}

// GetByID returns one playbook definition.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Playbook, error) {
	var p Playbook
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, stage_ids, steps
		FROM playbooks
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.StageIDs, &p.Steps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Playbook{}, ErrNotFound
		}
		return Playbook{}, apperr.Internal(fmt.Sprintf("get playbook failed: %v", err)).WithOp(opGetByID)
	}

	return p, nil
}
