// Package tasks provides the task model and Postgres data access. Tasks are
// generated by cadence automation, scheduling automation and the reactivation
// sweep, or created manually; only their status is mutated afterwards.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Status of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Well-known task types. Type is free-form for playbook steps; these are the
// types the automation itself generates.
const (
	TypeTask    = "task"
	TypeMeeting = "meeting"
)

// Task is a unit of sales work attached to a lead. Tasks carrying a
// PlaybookID belong to a cadence instance; PlaybookStepIndex points back at
// the originating step template. Source is a deterministic idempotency key
// for automation-generated tasks (reactivation reminders).
type Task struct {
	ID                uuid.UUID  `json:"id"`
	LeadID            uuid.UUID  `json:"leadId"`
	UserID            uuid.UUID  `json:"userId"`
	Type              string     `json:"type"`
	Title             string     `json:"title"`
	Description       *string    `json:"description,omitempty"`
	DueDate           time.Time  `json:"dueDate"`
	Status            Status     `json:"status"`
	PlaybookID        *uuid.UUID `json:"playbookId,omitempty"`
	PlaybookStepIndex *int       `json:"playbookStepIndex,omitempty"`
	Source            *string    `json:"source,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// CreateParams describes a task to insert.
type CreateParams struct {
	LeadID            uuid.UUID
	UserID            uuid.UUID
	Type              string
	Title             string
	Description       *string
	DueDate           time.Time
	PlaybookID        *uuid.UUID
	PlaybookStepIndex *int
	Source            *string
}
