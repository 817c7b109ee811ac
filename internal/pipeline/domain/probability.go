package domain

import (
	"math"

	"github.com/google/uuid"
)

// Probability bands per stage-type group. Open and qualification stages share
// one band; follow-up and scheduling each get their own. Within a band the
// probability rises linearly with the stage's position in its group.
const (
	openBandFloor   = 10
	openBandSpan    = 40
	openBandSingle  = 25
	followBandFloor = 41
	followBandSpan  = 39
	followBandSingle = 60
	schedBandFloor  = 81
	schedBandSpan   = 18
	schedBandSingle = 90
)

// Probability maps a target stage to a win-probability percentage, given the
// full ordered stage list of the pipeline. Won is always 100, lost always 0,
// unknown stage IDs resolve to 0. Pure and deterministic.
func Probability(stageID uuid.UUID, stages []Stage) int {
	target, ok := StageByID(stages, stageID)
	if !ok {
		return 0
	}

	switch target.Type {
	case StageTypeWon:
		return 100
	case StageTypeLost:
		return 0
	case StageTypeOpen, StageTypeQualification:
		return bandProbability(stageID, groupByTypes(stages, StageTypeOpen, StageTypeQualification),
			openBandFloor, openBandSpan, openBandSingle)
	case StageTypeFollowUp:
		return bandProbability(stageID, groupByTypes(stages, StageTypeFollowUp),
			followBandFloor, followBandSpan, followBandSingle)
	case StageTypeScheduling:
		return bandProbability(stageID, groupByTypes(stages, StageTypeScheduling),
			schedBandFloor, schedBandSpan, schedBandSingle)
	default:
		return 0
	}
}

func groupByTypes(stages []Stage, types ...StageType) []Stage {
	group := make([]Stage, 0, len(stages))
	for _, s := range stages {
		for _, t := range types {
			if s.Type == t {
				group = append(group, s)
				break
			}
		}
	}
	return group
}

func bandProbability(stageID uuid.UUID, group []Stage, floor, span, single int) int {
	if len(group) == 1 {
		return single
	}

	index := -1
	for i, s := range group {
		if s.ID == stageID {
			index = i
			break
		}
	}
	if index < 0 {
		return 0
	}

	fraction := float64(index) / float64(len(group)-1)
	return int(math.Round(float64(floor) + fraction*float64(span)))
}
