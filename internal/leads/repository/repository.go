// Package repository provides Postgres data access for leads. Multi-write
// operations (stage transition, playbook apply/deactivate) run inside a
// single transaction with an optimistic version check on the lead row, so a
// racing writer gets a conflict instead of silently losing updates.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByID            = "leads.repository.get_by_id"
	opApplyTransition    = "leads.repository.apply_transition"
	opApplyPlaybook      = "leads.repository.apply_playbook"
	opDeactivatePlaybook = "leads.repository.deactivate_playbook"
	opListReactivation   = "leads.repository.list_reactivation_due"
	opListActivities     = "leads.repository.list_activities"
)

var (
	// ErrNotFound is returned when a lead does not exist.
	ErrNotFound = errors.New("lead not found")
	// ErrVersionConflict is returned when a write loses an optimistic
	// concurrency race on the lead row.
	ErrVersionConflict = errors.New("lead was modified concurrently")
)

// ActivityEntry is an append-only audit record for a lead.
type ActivityEntry struct {
	ID         uuid.UUID `json:"id"`
	LeadID     uuid.UUID `json:"leadId"`
	Type       string    `json:"type"`
	Text       string    `json:"text"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TransitionChangeSet is the full write set of one stage transition, computed
// by the coordinator and applied atomically here.
type TransitionChangeSet struct {
	LeadID          uuid.UUID
	ExpectedVersion int64

	ColumnID         uuid.UUID
	Probability      int
	LastActivity     time.Time
	LostReason       *string
	ReactivationDate *time.Time
	ActivePlaybook   *domain.ActivePlaybook
	PlaybookHistory  []domain.PlaybookHistoryEntry

	// DeletePendingPlaybookID cancels the pending tasks of a retired cadence.
	DeletePendingPlaybookID *uuid.UUID
	// CreateTasks holds automation side-effect tasks (scheduling stage).
	CreateTasks []tasks.CreateParams
	// Activity is the audit entry for this transition, if any.
	Activity *ActivityEntry
}

// ApplyPlaybookParams is the write set of a cadence application.
type ApplyPlaybookParams struct {
	LeadID          uuid.UUID
	ExpectedVersion int64
	Active          domain.ActivePlaybook
	// ReplacePlaybookID cancels the pending tasks of a superseded cadence.
	ReplacePlaybookID *uuid.UUID
	Tasks             []tasks.CreateParams
}

const leadColumns = `id, board_id, column_id, name, owner_id, probability, last_activity, lost_reason, reactivation_date, active_playbook, playbook_history, version, created_at`

// Repository provides Postgres access to leads, their activity log and the
// cadence-owned slices of the tasks table.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new lead repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns one lead.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return r.getByID(ctx, r.pool, id)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getByID(ctx context.Context, q queryRower, id uuid.UUID) (domain.Lead, error) {
	var l domain.Lead
	err := q.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id).
		Scan(leadFields(&l)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, ErrNotFound
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("get lead failed: %v", err)).WithOp(opGetByID)
	}
	return l, nil
}

// ApplyTransition persists a stage transition and its automation side effects
// in one transaction. The lead row is the single point of truth for the
// version check; if it fails, nothing else is written.
func (r *Repository) ApplyTransition(ctx context.Context, cs TransitionChangeSet) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("begin transaction failed: %v", err)).WithOp(opApplyTransition)
	}
	defer tx.Rollback(ctx)

	var l domain.Lead
	err = tx.QueryRow(ctx, `
		UPDATE leads
		SET column_id = $3, probability = $4, last_activity = $5,
		    lost_reason = $6, reactivation_date = $7,
		    active_playbook = $8, playbook_history = $9,
		    version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		cs.LeadID, cs.ExpectedVersion, cs.ColumnID, cs.Probability, cs.LastActivity,
		cs.LostReason, cs.ReactivationDate, cs.ActivePlaybook, historyValue(cs.PlaybookHistory),
	).Scan(leadFields(&l)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, r.classifyMissingRow(ctx, cs.LeadID)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("update lead failed: %v", err)).WithOp(opApplyTransition)
	}

	if cs.DeletePendingPlaybookID != nil {
		if err := deletePendingCadenceTasks(ctx, tx, cs.LeadID, *cs.DeletePendingPlaybookID); err != nil {
			return domain.Lead{}, err
		}
	}

	if err := insertTasks(ctx, tx, cs.CreateTasks); err != nil {
		return domain.Lead{}, err
	}

	if cs.Activity != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lead_activities (id, lead_id, activity_type, text, author_name)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), cs.LeadID, cs.Activity.Type, cs.Activity.Text, cs.Activity.AuthorName); err != nil {
			return domain.Lead{}, apperr.Internal(fmt.Sprintf("insert activity failed: %v", err)).WithOp(opApplyTransition)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("commit transition failed: %v", err)).WithOp(opApplyTransition)
	}
	return l, nil
}

// ApplyPlaybook materializes a cadence on the lead: all step tasks plus the
// active-playbook marker commit together, or not at all.
func (r *Repository) ApplyPlaybook(ctx context.Context, p ApplyPlaybookParams) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("begin transaction failed: %v", err)).WithOp(opApplyPlaybook)
	}
	defer tx.Rollback(ctx)

	var l domain.Lead
	err = tx.QueryRow(ctx, `
		UPDATE leads
		SET active_playbook = $3, last_activity = now(), version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		p.LeadID, p.ExpectedVersion, p.Active,
	).Scan(leadFields(&l)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, r.classifyMissingRow(ctx, p.LeadID)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("update lead failed: %v", err)).WithOp(opApplyPlaybook)
	}

	if p.ReplacePlaybookID != nil {
		if err := deletePendingCadenceTasks(ctx, tx, p.LeadID, *p.ReplacePlaybookID); err != nil {
			return domain.Lead{}, err
		}
	}

	if err := insertTasks(ctx, tx, p.Tasks); err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("commit playbook apply failed: %v", err)).WithOp(opApplyPlaybook)
	}
	return l, nil
}

// DeactivatePlaybook clears the active playbook and cancels its pending
// tasks. Deactivation is a deliberate user action: no history entry is
// appended, unlike the stage-exit auto-completion.
func (r *Repository) DeactivatePlaybook(ctx context.Context, leadID, playbookID uuid.UUID, expectedVersion int64) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("begin transaction failed: %v", err)).WithOp(opDeactivatePlaybook)
	}
	defer tx.Rollback(ctx)

	var l domain.Lead
	err = tx.QueryRow(ctx, `
		UPDATE leads
		SET active_playbook = NULL, last_activity = now(), version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		leadID, expectedVersion,
	).Scan(leadFields(&l)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, r.classifyMissingRow(ctx, leadID)
		}
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("update lead failed: %v", err)).WithOp(opDeactivatePlaybook)
	}

	if err := deletePendingCadenceTasks(ctx, tx, leadID, playbookID); err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, apperr.Internal(fmt.Sprintf("commit deactivation failed: %v", err)).WithOp(opDeactivatePlaybook)
	}
	return l, nil
}

// ListReactivationDue returns leads whose reactivation date is on or before
// the given day. Date comparison is at day precision.
func (r *Repository) ListReactivationDue(ctx context.Context, asOf time.Time) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE reactivation_date IS NOT NULL AND reactivation_date <= $1
		ORDER BY reactivation_date
	`, asOf)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list reactivation-due leads failed: %v", err)).WithOp(opListReactivation)
	}
	defer rows.Close()

	var result []domain.Lead
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(leadFields(&l)...); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan lead failed: %v", err)).WithOp(opListReactivation)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate leads failed: %v", err)).WithOp(opListReactivation)
	}
	return result, nil
}

// ListActivities returns a lead's audit trail, newest first.
func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID) ([]ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, activity_type, text, author_name, created_at
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list activities failed: %v", err)).WithOp(opListActivities)
	}
	defer rows.Close()

	var result []ActivityEntry
	for rows.Next() {
		var a ActivityEntry
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Type, &a.Text, &a.AuthorName, &a.CreatedAt); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan activity failed: %v", err)).WithOp(opListActivities)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate activities failed: %v", err)).WithOp(opListActivities)
	}
	return result, nil
}

func (r *Repository) classifyMissingRow(ctx context.Context, leadID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&exists); err == nil && !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func deletePendingCadenceTasks(ctx context.Context, tx pgx.Tx, leadID, playbookID uuid.UUID) error {
	// Completed tasks are preserved as history; only pending ones go.
	if _, err := tx.Exec(ctx, `
		DELETE FROM tasks
		WHERE lead_id = $1 AND playbook_id = $2 AND status = 'pending'
	`, leadID, playbookID); err != nil {
		return apperr.Internal(fmt.Sprintf("delete pending cadence tasks failed: %v", err))
	}
	return nil
}

func insertTasks(ctx context.Context, tx pgx.Tx, params []tasks.CreateParams) error {
	for _, p := range params {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tasks (id, lead_id, user_id, task_type, title, description, due_date, status, playbook_id, playbook_step_index, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10)
		`, uuid.New(), p.LeadID, p.UserID, p.Type, p.Title, p.Description, p.DueDate, p.PlaybookID, p.PlaybookStepIndex, p.Source); err != nil {
			return apperr.Internal(fmt.Sprintf("insert task failed: %v", err))
		}
	}
	return nil
}

func leadFields(l *domain.Lead) []any {
	return []any{
		&l.ID, &l.BoardID, &l.ColumnID, &l.Name, &l.OwnerID, &l.Probability,
		&l.LastActivity, &l.LostReason, &l.ReactivationDate,
		&l.ActivePlaybook, &l.PlaybookHistory, &l.Version, &l.CreatedAt,
	}
}

// historyValue keeps the jsonb column non-null for empty histories.
func historyValue(history []domain.PlaybookHistoryEntry) []domain.PlaybookHistoryEntry {
	if history == nil {
		return []domain.PlaybookHistoryEntry{}
	}
	return history
}
