// Package repository provides Postgres data access for pipeline stages.
// Stage configuration is owned by the board setup flow and read-only here.
package repository

import (
	"context"
	"fmt"

	"crm_pipeline_backend/internal/pipeline/domain"
	"crm_pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opListStages = "pipeline.repository.list_stages"
	opGetStage   = "pipeline.repository.get_stage"
)

// Repository reads pipeline stage configuration.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new pipeline repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListStages returns the ordered stage list for a board.
func (r *Repository) ListStages(ctx context.Context, boardID uuid.UUID) ([]domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, board_id, title, color, stage_type, position
		FROM pipeline_stages
		WHERE board_id = $1
		ORDER BY position
	`, boardID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list stages failed: %v", err)).WithOp(opListStages)
	}
	defer rows.Close()

	var stages []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.BoardID, &s.Title, &s.Color, &s.Type, &s.Position); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan stage failed: %v", err)).WithOp(opListStages)
		}
		stages = append(stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list stages failed: %v", err)).WithOp(opListStages)
	}

	return stages, nil
}
