// Package transition implements the lead stage-transition state machine:
// validation, the two-phase lost protocol, probability recompute, playbook
// exit/re-entry on stage boundaries, scheduling automation and activity
// logging. All writes of one transition commit atomically through the
// repository.
package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/lock"
	"crm_pipeline_backend/internal/leads/repository"
	pipeline "crm_pipeline_backend/internal/pipeline/domain"
	"crm_pipeline_backend/internal/playbooks"
	"crm_pipeline_backend/internal/tasks"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

// Cause identifies what triggered a transition. Automated causes skip the
// manual activity entry but still run playbook exit/re-entry.
type Cause string

const (
	CauseUser              Cause = "user"
	CauseCadenceCompletion Cause = "cadence_completion"
	CauseReactivation      Cause = "reactivation"
)

// SystemAuthor is the activity author for automated transitions.
const SystemAuthor = "system"

const (
	activityStageChanged      = "stage_changed"
	activityStageAutoAdvanced = "stage_auto_advanced"
)

// Result describes the outcome of a transition request.
type Result struct {
	// Noop is true when the request resolved to nothing (unknown lead or
	// stage). Unresolvable inputs are ignored, not errors.
	Noop bool
	// NeedsLostReason is true when the target is a lost stage: the lead is
	// untouched until the caller supplies a reason via ProcessLostLead.
	NeedsLostReason bool
	// TargetStageID echoes the requested stage when NeedsLostReason is set.
	TargetStageID uuid.UUID
	// Lead is the post-transition lead when a transition was applied.
	Lead *domain.Lead
}

// LeadStore is the persistence surface the coordinator needs.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ApplyTransition(ctx context.Context, cs repository.TransitionChangeSet) (domain.Lead, error)
}

// StageReader resolves the ordered stage list of a board.
type StageReader interface {
	ListStages(ctx context.Context, boardID uuid.UUID) ([]pipeline.Stage, error)
}

// PlaybookReader resolves playbook definitions.
type PlaybookReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (playbooks.Playbook, error)
}

// Coordinator executes lead stage transitions.
type Coordinator struct {
	leads     LeadStore
	stages    StageReader
	playbooks PlaybookReader
	bus       events.Bus
	log       *logger.Logger
	locks     *lock.Keyed
	now       func() time.Time
}

// New creates a stage-transition coordinator. The lock set must be shared
// with every other component that mutates leads.
func New(leads LeadStore, stages StageReader, pbs PlaybookReader, bus events.Bus, locks *lock.Keyed, log *logger.Logger) *Coordinator {
	return &Coordinator{
		leads:     leads,
		stages:    stages,
		playbooks: pbs,
		bus:       bus,
		log:       log,
		locks:     locks,
		now:       time.Now,
	}
}

// lostDetails carries the mandatory reason collected by the caller before a
// lead may enter a lost stage.
type lostDetails struct {
	reason           string
	reactivationDate *time.Time
}

// Transition moves a lead to a new stage. Unresolvable leads or stages are a
// silent no-op. A move into a lost stage is deferred: the result asks the
// caller to collect a reason and call ProcessLostLead.
func (c *Coordinator) Transition(ctx context.Context, leadID, newStageID uuid.UUID, cause Cause, actorName string) (Result, error) {
	unlock := c.locks.Lock(leadID)
	defer unlock()

	lead, stages, newStage, oldStage, res, err := c.resolve(ctx, leadID, newStageID)
	if err != nil || res != nil {
		if res != nil {
			return *res, err
		}
		return Result{}, err
	}

	if newStage.Type == pipeline.StageTypeLost && lead.ColumnID != newStage.ID {
		return Result{NeedsLostReason: true, TargetStageID: newStage.ID}, nil
	}

	return c.execute(ctx, lead, stages, oldStage, newStage, cause, actorName, nil)
}

// ProcessLostLead completes a deferred move into a lost stage once the caller
// has collected the mandatory reason.
func (c *Coordinator) ProcessLostLead(ctx context.Context, leadID, lostStageID uuid.UUID, reason string, reactivationDate *time.Time, actorName string) (Result, error) {
	if reason == "" {
		return Result{}, apperr.Validation("a reason is required to mark a lead as lost")
	}

	unlock := c.locks.Lock(leadID)
	defer unlock()

	lead, stages, newStage, oldStage, res, err := c.resolve(ctx, leadID, lostStageID)
	if err != nil || res != nil {
		if res != nil {
			return *res, err
		}
		return Result{}, err
	}

	if newStage.Type != pipeline.StageTypeLost {
		return Result{}, apperr.Validation("target stage is not a lost stage")
	}

	lost := &lostDetails{reason: reason}
	if reactivationDate != nil {
		day := reactivationDate.Truncate(24 * time.Hour)
		lost.reactivationDate = &day
	}

	result, err := c.execute(ctx, lead, stages, oldStage, newStage, CauseUser, actorName, lost)
	if err != nil {
		return Result{}, err
	}

	c.bus.Publish(ctx, events.LeadLost{
		BaseEvent:        events.NewBaseEvent(),
		LeadID:           lead.ID,
		StageID:          newStage.ID,
		Reason:           reason,
		ReactivationDate: lost.reactivationDate,
	})
	return result, nil
}

// resolve loads the lead and stage configuration. A nil error with a non-nil
// Result means the request dissolved into a no-op.
func (c *Coordinator) resolve(ctx context.Context, leadID, newStageID uuid.UUID) (domain.Lead, []pipeline.Stage, pipeline.Stage, pipeline.Stage, *Result, error) {
	var none domain.Lead

	lead, err := c.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.log.Debug("transition ignored: lead not found", "lead_id", leadID)
			return none, nil, pipeline.Stage{}, pipeline.Stage{}, &Result{Noop: true}, nil
		}
		return none, nil, pipeline.Stage{}, pipeline.Stage{}, nil, err
	}

	stages, err := c.stages.ListStages(ctx, lead.BoardID)
	if err != nil {
		return none, nil, pipeline.Stage{}, pipeline.Stage{}, nil, err
	}

	newStage, okNew := pipeline.StageByID(stages, newStageID)
	oldStage, okOld := pipeline.StageByID(stages, lead.ColumnID)
	if !okNew || !okOld {
		c.log.Debug("transition ignored: unresolvable stage",
			"lead_id", leadID, "new_stage_id", newStageID, "old_stage_id", lead.ColumnID)
		return none, nil, pipeline.Stage{}, pipeline.Stage{}, &Result{Noop: true}, nil
	}

	return lead, stages, newStage, oldStage, nil, nil
}

// execute computes the full change set for the move and applies it in one
// persisted write. Nothing is mutated before that write succeeds.
func (c *Coordinator) execute(ctx context.Context, lead domain.Lead, stages []pipeline.Stage, oldStage, newStage pipeline.Stage, cause Cause, actorName string, lost *lostDetails) (Result, error) {
	now := c.now()

	cs := repository.TransitionChangeSet{
		LeadID:          lead.ID,
		ExpectedVersion: lead.Version,
		ColumnID:        newStage.ID,
		Probability:     pipeline.Probability(newStage.ID, stages),
		LastActivity:    now,
		ActivePlaybook:  lead.ActivePlaybook,
		PlaybookHistory: lead.PlaybookHistory,
	}

	switch {
	case lost != nil:
		cs.LostReason = &lost.reason
		cs.ReactivationDate = lost.reactivationDate
	case newStage.Type == pipeline.StageTypeLost:
		// Self-move within the lost stage keeps the recorded reason.
		cs.LostReason = lead.LostReason
		cs.ReactivationDate = lead.ReactivationDate
	}

	retired, err := c.applyPlaybookExit(ctx, &cs, newStage)
	if err != nil {
		return Result{}, err
	}
	revived, err := c.applyPlaybookReentry(ctx, &cs, newStage)
	if err != nil {
		return Result{}, err
	}

	if newStage.Type == pipeline.StageTypeScheduling && oldStage.Type != pipeline.StageTypeScheduling {
		cs.CreateTasks = append(cs.CreateTasks, tasks.CreateParams{
			LeadID:  lead.ID,
			UserID:  lead.OwnerID,
			Type:    tasks.TypeMeeting,
			Title:   fmt.Sprintf("Schedule a meeting with %s", lead.Name),
			DueDate: now.Truncate(24 * time.Hour),
		})
	}

	if oldStage.ID != newStage.ID {
		if cause == CauseUser {
			cs.Activity = &repository.ActivityEntry{
				Type:       activityStageChanged,
				Text:       fmt.Sprintf("Moved from %q to %q", oldStage.Title, newStage.Title),
				AuthorName: actorName,
			}
		} else {
			cs.Activity = &repository.ActivityEntry{
				Type:       activityStageAutoAdvanced,
				Text:       fmt.Sprintf("Automatically advanced from %q to %q", oldStage.Title, newStage.Title),
				AuthorName: SystemAuthor,
			}
		}
	}

	updated, err := c.leads.ApplyTransition(ctx, cs)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return Result{Noop: true}, nil
		case errors.Is(err, repository.ErrVersionConflict):
			return Result{}, apperr.Conflict("lead was modified concurrently")
		}
		return Result{}, err
	}

	c.log.StageTransition(lead.ID.String(), oldStage.Title, newStage.Title, string(cause))

	if oldStage.ID != newStage.ID {
		c.bus.Publish(ctx, events.LeadStageChanged{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      lead.ID,
			FromStageID: oldStage.ID,
			ToStageID:   newStage.ID,
			Probability: updated.Probability,
			Cause:       string(cause),
		})
	}
	if retired != nil {
		c.bus.Publish(ctx, events.PlaybookRetired{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     lead.ID,
			PlaybookID: *retired,
		})
	}
	if revived != nil {
		c.bus.Publish(ctx, events.PlaybookApplied{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       lead.ID,
			PlaybookID:   revived.PlaybookID,
			PlaybookName: revived.PlaybookName,
		})
	}

	return Result{Lead: &updated}, nil
}

// applyPlaybookExit retires the active playbook when the lead leaves its
// configured stages: one history entry, marker cleared, pending cadence
// tasks cancelled. Completed tasks stay as history.
func (c *Coordinator) applyPlaybookExit(ctx context.Context, cs *repository.TransitionChangeSet, newStage pipeline.Stage) (*uuid.UUID, error) {
	active := cs.ActivePlaybook
	if active == nil {
		return nil, nil
	}

	pb, err := c.playbooks.GetByID(ctx, active.PlaybookID)
	if err != nil && !errors.Is(err, playbooks.ErrNotFound) {
		return nil, err
	}
	// A deleted playbook definition cannot keep a cadence alive.
	if err == nil && pb.ContainsStage(newStage.ID) {
		return nil, nil
	}
	if domain.HistoryMarksComplete(cs.PlaybookHistory, active.PlaybookID) {
		return nil, nil
	}

	cs.PlaybookHistory = domain.RetireActivePlaybook(cs.PlaybookHistory, *active, c.now())
	cs.ActivePlaybook = nil
	playbookID := active.PlaybookID
	cs.DeletePendingPlaybookID = &playbookID
	return &playbookID, nil
}

// applyPlaybookReentry revives the most recently completed playbook when the
// lead moves back into one of its stages, keeping the original StartedAt so
// cadence timing is preserved.
func (c *Coordinator) applyPlaybookReentry(ctx context.Context, cs *repository.TransitionChangeSet, newStage pipeline.Stage) (*domain.ActivePlaybook, error) {
	if cs.ActivePlaybook != nil {
		return nil, nil
	}

	last, ok := domain.LastHistoryEntry(cs.PlaybookHistory)
	if !ok {
		return nil, nil
	}

	pb, err := c.playbooks.GetByID(ctx, last.PlaybookID)
	if err != nil {
		if errors.Is(err, playbooks.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !pb.ContainsStage(newStage.ID) {
		return nil, nil
	}

	active, history, _ := domain.ReviveLastPlaybook(cs.PlaybookHistory)
	cs.ActivePlaybook = &active
	cs.PlaybookHistory = history
	return &active, nil
}
