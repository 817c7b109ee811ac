// Package cadence materializes playbook cadences onto leads and reacts to
// task completion. Applying a playbook creates one task per step template and
// the active-playbook marker in a single transaction; completing the last
// task of a cadence advances the lead to the next pipeline stage.
package cadence

import (
	"context"
	"errors"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/lock"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/transition"
	pipeline "crm_pipeline_backend/internal/pipeline/domain"
	"crm_pipeline_backend/internal/playbooks"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadStore is the persistence surface the engine needs on leads.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ApplyPlaybook(ctx context.Context, p repository.ApplyPlaybookParams) (domain.Lead, error)
	DeactivatePlaybook(ctx context.Context, leadID, playbookID uuid.UUID, expectedVersion int64) (domain.Lead, error)
}

// PlaybookReader resolves playbook definitions.
type PlaybookReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (playbooks.Playbook, error)
}

// TaskReader lists the tasks of one cadence instance.
type TaskReader interface {
	ListByCadence(ctx context.Context, leadID, playbookID uuid.UUID) ([]tasks.Task, error)
}

// StageReader resolves the ordered stage list of a board.
type StageReader interface {
	ListStages(ctx context.Context, boardID uuid.UUID) ([]pipeline.Stage, error)
}

// Advancer moves a lead to another stage. Satisfied by the transition
// coordinator.
type Advancer interface {
	Transition(ctx context.Context, leadID, newStageID uuid.UUID, cause transition.Cause, actorName string) (transition.Result, error)
}

// Engine drives playbook cadences.
type Engine struct {
	leads     LeadStore
	playbooks PlaybookReader
	tasks     TaskReader
	stages    StageReader
	advancer  Advancer
	bus       events.Bus
	log       *logger.Logger
	locks     *lock.Keyed
	now       func() time.Time
}

// New creates a cadence engine. The lock set must be the same instance the
// transition coordinator uses.
func New(leads LeadStore, pbs PlaybookReader, taskReader TaskReader, stages StageReader, advancer Advancer, bus events.Bus, locks *lock.Keyed, log *logger.Logger) *Engine {
	return &Engine{
		leads:     leads,
		playbooks: pbs,
		tasks:     taskReader,
		stages:    stages,
		advancer:  advancer,
		bus:       bus,
		log:       log,
		locks:     locks,
		now:       time.Now,
	}
}

// Apply materializes a playbook onto a lead: one task per step template, due
// step.Day days from now, plus the active-playbook marker. Everything commits
// in one transaction. An already active cadence is superseded: its pending
// tasks are deleted in the same transaction.
func (e *Engine) Apply(ctx context.Context, leadID, playbookID uuid.UUID) (domain.Lead, error) {
	unlock := e.locks.Lock(leadID)
	defer unlock()

	lead, err := e.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, err
	}

	pb, err := e.playbooks.GetByID(ctx, playbookID)
	if err != nil {
		if errors.Is(err, playbooks.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("playbook not found")
		}
		return domain.Lead{}, err
	}
	if !pb.ContainsStage(lead.ColumnID) {
		return domain.Lead{}, apperr.Validation("playbook does not cover the lead's current stage")
	}

	now := e.now()
	day := now.Truncate(24 * time.Hour)

	params := repository.ApplyPlaybookParams{
		LeadID:          lead.ID,
		ExpectedVersion: lead.Version,
		Active: domain.ActivePlaybook{
			PlaybookID:   pb.ID,
			PlaybookName: pb.Name,
			StartedAt:    now,
		},
	}
	if lead.ActivePlaybook != nil {
		replaced := lead.ActivePlaybook.PlaybookID
		params.ReplacePlaybookID = &replaced
	}

	for i, step := range pb.Steps {
		idx := i
		pbID := pb.ID
		params.Tasks = append(params.Tasks, tasks.CreateParams{
			LeadID:            lead.ID,
			UserID:            lead.OwnerID,
			Type:              step.Type,
			Title:             step.Instructions,
			DueDate:           day.AddDate(0, 0, step.Day),
			PlaybookID:        &pbID,
			PlaybookStepIndex: &idx,
		})
	}

	updated, err := e.leads.ApplyPlaybook(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.Lead{}, apperr.Conflict("lead was modified concurrently")
		}
		return domain.Lead{}, err
	}

	e.log.CadenceEvent("applied", lead.ID.String(), pb.ID.String())
	e.bus.Publish(ctx, events.PlaybookApplied{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		PlaybookID:   pb.ID,
		PlaybookName: pb.Name,
		TaskCount:    len(params.Tasks),
	})
	return updated, nil
}

// Deactivate removes the active playbook from a lead as a deliberate user
// action: pending cadence tasks are deleted and the marker is cleared without
// a history entry. A lead without an active playbook is a no-op.
func (e *Engine) Deactivate(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	unlock := e.locks.Lock(leadID)
	defer unlock()

	lead, err := e.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, err
	}
	if lead.ActivePlaybook == nil {
		return lead, nil
	}

	playbookID := lead.ActivePlaybook.PlaybookID
	updated, err := e.leads.DeactivatePlaybook(ctx, lead.ID, playbookID, lead.Version)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.Lead{}, apperr.Conflict("lead was modified concurrently")
		}
		return domain.Lead{}, err
	}

	e.log.CadenceEvent("deactivated", lead.ID.String(), playbookID.String())
	e.bus.Publish(ctx, events.PlaybookDeactivated{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		PlaybookID: playbookID,
	})
	return updated, nil
}

// OnTaskStatusChanged inspects a task after its status changed. When the
// completed task was the last pending task of the lead's active cadence, the
// lead advances to the next pipeline stage. The advancement goes through the
// coordinator, so a cadence that pushes the lead out of its own stages
// retires itself through the normal exit check. The coordinator acquires the
// lead lock itself, so this method must not hold it across the call.
func (e *Engine) OnTaskStatusChanged(ctx context.Context, task tasks.Task) error {
	if task.Status != tasks.StatusCompleted || task.PlaybookID == nil {
		return nil
	}

	lead, err := e.leads.GetByID(ctx, task.LeadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if lead.ActivePlaybook == nil || lead.ActivePlaybook.PlaybookID != *task.PlaybookID {
		return nil
	}

	cadenceTasks, err := e.tasks.ListByCadence(ctx, lead.ID, *task.PlaybookID)
	if err != nil {
		return err
	}
	for _, t := range cadenceTasks {
		if t.ID != task.ID && t.Status != tasks.StatusCompleted {
			return nil
		}
	}

	stages, err := e.stages.ListStages(ctx, lead.BoardID)
	if err != nil {
		return err
	}
	next, ok := pipeline.NextStage(stages, lead.ColumnID)
	if !ok {
		return nil
	}

	e.log.CadenceEvent("completed", lead.ID.String(), task.PlaybookID.String())
	e.bus.Publish(ctx, events.CadenceCompleted{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     lead.ID,
		PlaybookID: *task.PlaybookID,
	})

	_, err = e.advancer.Transition(ctx, lead.ID, next.ID, transition.CauseCadenceCompletion, "")
	return err
}
