package tasks

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
	opCreate         = "tasks.repository.create"
	opGetByID        = "tasks.repository.get_by_id"
	opListByLead     = "tasks.repository.list_by_lead"
	opListByCadence  = "tasks.repository.list_by_cadence"
	opUpdateStatus   = "tasks.repository.update_status"
	opCreateIfAbsent = "tasks.repository.create_if_source_absent"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task not found")

const taskColumns = `id, lead_id, user_id, task_type, title, description, due_date, status, playbook_id, playbook_step_index, source, created_at`

// Repository provides Postgres access to tasks.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new task repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a single task.
func (r *Repository) Create(ctx context.Context, p CreateParams) (Task, error) {
	var t Task
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, lead_id, user_id, task_type, title, description, due_date, status, playbook_id, playbook_step_index, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10)
		RETURNING `+taskColumns+`
	`, uuid.New(), p.LeadID, p.UserID, p.Type, p.Title, p.Description, p.DueDate, p.PlaybookID, p.PlaybookStepIndex, p.Source).
		Scan(taskFields(&t)...)
	if err != nil {
		return Task{}, apperr.Internal(fmt.Sprintf("create task failed: %v", err)).WithOp(opCreate)
	}
	return t, nil
}

// CreateIfSourceAbsent inserts a task unless a pending task with the same
// source key already exists. The partial unique index on (source) for pending
// tasks makes this safe under concurrent sweeps; the second writer observes
// the conflict and backs off. Returns created=false when deduplicated.
func (r *Repository) CreateIfSourceAbsent(ctx context.Context, p CreateParams) (Task, bool, error) {
	if p.Source == nil {
		return Task{}, false, apperr.Validation("source key is required").WithOp(opCreateIfAbsent)
	}

	var t Task
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, lead_id, user_id, task_type, title, description, due_date, status, playbook_id, playbook_step_index, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10)
		ON CONFLICT (source) WHERE status = 'pending' DO NOTHING
		RETURNING `+taskColumns+`
	`, uuid.New(), p.LeadID, p.UserID, p.Type, p.Title, p.Description, p.DueDate, p.PlaybookID, p.PlaybookStepIndex, p.Source).
		Scan(taskFields(&t)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, false, nil
		}
		return Task{}, false, apperr.Internal(fmt.Sprintf("create task failed: %v", err)).WithOp(opCreateIfAbsent)
	}
	return t, true, nil
}

// GetByID returns one task.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Task, error) {
	var t Task
	err := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id).
		Scan(taskFields(&t)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, apperr.Internal(fmt.Sprintf("get task failed: %v", err)).WithOp(opGetByID)
	}
	return t, nil
}

// ListByLead returns all tasks for a lead, newest due first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE lead_id = $1 ORDER BY due_date, created_at
	`, leadID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list tasks failed: %v", err)).WithOp(opListByLead)
	}
	defer rows.Close()
	return scanTasks(rows, opListByLead)
}

// ListByCadence returns all tasks belonging to one cadence instance.
func (r *Repository) ListByCadence(ctx context.Context, leadID, playbookID uuid.UUID) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE lead_id = $1 AND playbook_id = $2
		ORDER BY playbook_step_index
	`, leadID, playbookID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list cadence tasks failed: %v", err)).WithOp(opListByCadence)
	}
	defer rows.Close()
	return scanTasks(rows, opListByCadence)
}

// UpdateStatus sets a task's status and returns the updated task.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Task, error) {
	var t Task
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks SET status = $2 WHERE id = $1
		RETURNING `+taskColumns+`
	`, id, status).Scan(taskFields(&t)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, apperr.Internal(fmt.Sprintf("update task status failed: %v", err)).WithOp(opUpdateStatus)
	}
	return t, nil
}

func taskFields(t *Task) []any {
	return []any{
		&t.ID, &t.LeadID, &t.UserID, &t.Type, &t.Title, &t.Description,
		&t.DueDate, &t.Status, &t.PlaybookID, &t.PlaybookStepIndex, &t.Source, &t.CreatedAt,
	}
}

func scanTasks(rows pgx.Rows, op string) ([]Task, error) {
	var result []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(taskFields(&t)...); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan task failed: %v", err)).WithOp(op)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate tasks failed: %v", err)).WithOp(op)
	}
	return result, nil
}
