// Package domain provides core business rules for the pipeline bounded context.
package domain

import "github.com/google/uuid"

// StageType classifies a pipeline stage. The type drives win-probability
// banding, the lost-lead protocol and scheduling automation.
type StageType string

const (
	StageTypeOpen          StageType = "open"
	StageTypeQualification StageType = "qualification"
	StageTypeFollowUp      StageType = "follow-up"
	StageTypeScheduling    StageType = "scheduling"
	StageTypeWon           StageType = "won"
	StageTypeLost          StageType = "lost"
)

var knownStageTypes = map[StageType]struct{}{
	StageTypeOpen:          {},
	StageTypeQualification: {},
	StageTypeFollowUp:      {},
	StageTypeScheduling:    {},
	StageTypeWon:           {},
	StageTypeLost:          {},
}

// IsKnownStageType reports whether the stage type is one the engine understands.
func IsKnownStageType(t StageType) bool {
	_, ok := knownStageTypes[t]
	return ok
}

// Stage is a named step in a sales pipeline. Stages are ordered by Position
// within a board; the order is significant for probability and advancement.
type Stage struct {
	ID       uuid.UUID `json:"id"`
	BoardID  uuid.UUID `json:"boardId"`
	Title    string    `json:"title"`
	Color    string    `json:"color"`
	Type     StageType `json:"type"`
	Position int       `json:"position"`
}

// StageByID finds a stage in the ordered stage list.
func StageByID(stages []Stage, id uuid.UUID) (Stage, bool) {
	for _, s := range stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// NextStage returns the stage directly after the given one in pipeline order.
func NextStage(stages []Stage, currentID uuid.UUID) (Stage, bool) {
	for i, s := range stages {
		if s.ID == currentID {
			if i+1 < len(stages) {
				return stages[i+1], true
			}
			return Stage{}, false
		}
	}
	return Stage{}, false
}
