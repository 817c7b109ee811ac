// Package playbooks provides the read-only playbook catalog: named,
// ordered sequences of day-offset task templates ("cadences") tied to a set
// of pipeline stages. Definitions are configuration; the automation engine
// never mutates them.
package playbooks

import "github.com/google/uuid"

// Step is one task template of a playbook. Steps are ordered by array
// position, not by Day; Day is the due-date offset in days from cadence start.
type Step struct {
	Day          int    `json:"day"`
	Type         string `json:"type"`
	Instructions string `json:"instructions"`
}

// Playbook is an immutable-per-use cadence definition.
type Playbook struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	StageIDs []uuid.UUID `json:"stageIds"`
	Steps    []Step      `json:"steps"`
}

// ContainsStage reports whether the playbook is configured for the stage.
func (p Playbook) ContainsStage(stageID uuid.UUID) bool {
	for _, id := range p.StageIDs {
		if id == stageID {
			return true
		}
	}
	return false
}
