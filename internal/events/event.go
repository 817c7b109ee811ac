// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"crm_pipeline_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Pipeline Events
// =============================================================================

// LeadStageChanged is published after a lead transition commits.
type LeadStageChanged struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	FromStageID uuid.UUID `json:"fromStageId"`
	ToStageID   uuid.UUID `json:"toStageId"`
	Probability int       `json:"probability"`
	Cause       string    `json:"cause"` // "user", "cadence_completion", "reactivation"
}

func (e LeadStageChanged) EventName() string { return "leads.stage.changed" }

// LeadLost is published when a lead enters a lost stage with a recorded reason.
type LeadLost struct {
	BaseEvent
	LeadID           uuid.UUID  `json:"leadId"`
	StageID          uuid.UUID  `json:"stageId"`
	Reason           string     `json:"reason"`
	ReactivationDate *time.Time `json:"reactivationDate,omitempty"`
}

func (e LeadLost) EventName() string { return "leads.lost" }

// LeadReactivationDue is published by the reactivation sweep when a lost
// lead's scheduled reactivation date has arrived and a reminder was created.
type LeadReactivationDue struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	LeadName string    `json:"leadName"`
	OwnerID  uuid.UUID `json:"ownerId"`
	TaskID   uuid.UUID `json:"taskId"`
	DueDate  time.Time `json:"dueDate"`
}

func (e LeadReactivationDue) EventName() string { return "leads.reactivation.due" }

// =============================================================================
// Playbook Cadence Events
// =============================================================================

// PlaybookApplied is published when a playbook cadence is materialized on a lead.
type PlaybookApplied struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	PlaybookID   uuid.UUID `json:"playbookId"`
	PlaybookName string    `json:"playbookName"`
	TaskCount    int       `json:"taskCount"`
}

func (e PlaybookApplied) EventName() string { return "playbooks.applied" }

// PlaybookRetired is published when a lead leaves its active playbook's
// stages and the cadence is auto-completed into history.
type PlaybookRetired struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	PlaybookID uuid.UUID `json:"playbookId"`
}

func (e PlaybookRetired) EventName() string { return "playbooks.retired" }

// PlaybookDeactivated is published when a user deliberately removes an active
// playbook from a lead, cancelling its pending tasks.
type PlaybookDeactivated struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	PlaybookID uuid.UUID `json:"playbookId"`
}

func (e PlaybookDeactivated) EventName() string { return "playbooks.deactivated" }

// CadenceCompleted is published when the last pending task of an active
// cadence is completed, right before the automated stage advancement.
type CadenceCompleted struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	PlaybookID uuid.UUID `json:"playbookId"`
}

func (e CadenceCompleted) EventName() string { return "cadence.completed" }
