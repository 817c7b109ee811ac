// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivePlaybook marks the lead's live cadence instance. A lead has at most
// one active playbook, and only while it sits in one of that playbook's
// configured stages.
type ActivePlaybook struct {
	PlaybookID   uuid.UUID `json:"playbookId"`
	PlaybookName string    `json:"playbookName"`
	StartedAt    time.Time `json:"startedAt"`
}

// PlaybookHistoryEntry is an append-only record of a finished cadence.
type PlaybookHistoryEntry struct {
	PlaybookID   uuid.UUID `json:"playbookId"`
	PlaybookName string    `json:"playbookName"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Lead is the mutable subject of the stage-transition engine.
type Lead struct {
	ID               uuid.UUID
	BoardID          uuid.UUID
	ColumnID         uuid.UUID
	Name             string
	OwnerID          uuid.UUID
	Probability      int
	LastActivity     time.Time
	LostReason       *string
	ReactivationDate *time.Time
	ActivePlaybook   *ActivePlaybook
	PlaybookHistory  []PlaybookHistoryEntry
	Version          int64
	CreatedAt        time.Time
}

// HistoryMarksComplete reports whether the history already contains a
// completion entry for the playbook. Guards against double-retiring a
// cadence when a lead bounces between stages.
func HistoryMarksComplete(history []PlaybookHistoryEntry, playbookID uuid.UUID) bool {
	for _, entry := range history {
		if entry.PlaybookID == playbookID {
			return true
		}
	}
	return false
}

// RetireActivePlaybook appends a completion entry for the active playbook and
// returns the new history. The caller clears ActivePlaybook alongside.
func RetireActivePlaybook(history []PlaybookHistoryEntry, active ActivePlaybook, completedAt time.Time) []PlaybookHistoryEntry {
	entry := PlaybookHistoryEntry{
		PlaybookID:   active.PlaybookID,
		PlaybookName: active.PlaybookName,
		StartedAt:    active.StartedAt,
		CompletedAt:  completedAt,
	}
	out := make([]PlaybookHistoryEntry, 0, len(history)+1)
	out = append(out, history...)
	return append(out, entry)
}

// LastHistoryEntry returns the most recent history entry, if any.
func LastHistoryEntry(history []PlaybookHistoryEntry) (PlaybookHistoryEntry, bool) {
	if len(history) == 0 {
		return PlaybookHistoryEntry{}, false
	}
	return history[len(history)-1], true
}

// ReviveLastPlaybook pops the last history entry and converts it back into an
// active playbook, preserving the original StartedAt so the cadence timing is
// unchanged. Used when a lead moves backward into a stage of the playbook it
// most recently completed.
func ReviveLastPlaybook(history []PlaybookHistoryEntry) (ActivePlaybook, []PlaybookHistoryEntry, bool) {
	entry, ok := LastHistoryEntry(history)
	if !ok {
		return ActivePlaybook{}, history, false
	}

	active := ActivePlaybook{
		PlaybookID:   entry.PlaybookID,
		PlaybookName: entry.PlaybookName,
		StartedAt:    entry.StartedAt,
	}
	trimmed := make([]PlaybookHistoryEntry, len(history)-1)
	copy(trimmed, history[:len(history)-1])
	return active, trimmed, true
}
