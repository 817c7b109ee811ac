package domain

import (
	"testing"

	"github.com/google/uuid"
)

func makePipeline(types ...StageType) []Stage {
	stages := make([]Stage, len(types))
	for i, t := range types {
		stages[i] = Stage{ID: uuid.New(), Title: string(t), Type: t, Position: i}
	}
	return stages
}

func TestProbability_WonAndLostAreAbsolute(t *testing.T) {
	stages := makePipeline(StageTypeLost, StageTypeOpen, StageTypeWon, StageTypeLost)

	if got := Probability(stages[2].ID, stages); got != 100 {
		t.Errorf("won stage probability = %d, want 100", got)
	}
	// Lost is 0 regardless of position.
	if got := Probability(stages[0].ID, stages); got != 0 {
		t.Errorf("first lost stage probability = %d, want 0", got)
	}
	if got := Probability(stages[3].ID, stages); got != 0 {
		t.Errorf("last lost stage probability = %d, want 0", got)
	}
}

func TestProbability_UnknownStageIsZero(t *testing.T) {
	stages := makePipeline(StageTypeOpen, StageTypeWon)
	if got := Probability(uuid.New(), stages); got != 0 {
		t.Errorf("unknown stage probability = %d, want 0", got)
	}
}

func TestProbability_OpenQualificationBandSpansTenToFifty(t *testing.T) {
	stages := makePipeline(
		StageTypeOpen, StageTypeOpen, StageTypeQualification, StageTypeQualification,
		StageTypeFollowUp, StageTypeWon,
	)

	group := stages[:4]
	prev := -1
	for i, s := range group {
		got := Probability(s.ID, stages)
		if got < prev {
			t.Errorf("probabilities not non-decreasing at index %d: %d after %d", i, got, prev)
		}
		prev = got
	}

	if first := Probability(group[0].ID, stages); first != 10 {
		t.Errorf("first open stage = %d, want 10", first)
	}
	if last := Probability(group[3].ID, stages); last != 50 {
		t.Errorf("last qualification stage = %d, want 50", last)
	}
}

func TestProbability_SingleStageGroups(t *testing.T) {
	stages := makePipeline(StageTypeOpen, StageTypeFollowUp, StageTypeScheduling, StageTypeWon, StageTypeLost)

	tests := []struct {
		name  string
		stage Stage
		want  int
	}{
		{"single open", stages[0], 25},
		{"single follow-up", stages[1], 60},
		{"single scheduling", stages[2], 90},
	}

	for _, tc := range tests {
		if got := Probability(tc.stage.ID, stages); got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestProbability_FollowUpBandSpansFortyOneToEighty(t *testing.T) {
	stages := makePipeline(StageTypeOpen, StageTypeFollowUp, StageTypeFollowUp, StageTypeFollowUp, StageTypeWon)

	if got := Probability(stages[1].ID, stages); got != 41 {
		t.Errorf("first follow-up = %d, want 41", got)
	}
	if got := Probability(stages[2].ID, stages); got != 61 {
		t.Errorf("middle follow-up = %d, want 61 (round(41+0.5*39))", got)
	}
	if got := Probability(stages[3].ID, stages); got != 80 {
		t.Errorf("last follow-up = %d, want 80", got)
	}
}

func TestProbability_SchedulingBandSpansEightyOneToNinetyNine(t *testing.T) {
	stages := makePipeline(StageTypeScheduling, StageTypeScheduling, StageTypeWon)

	if got := Probability(stages[0].ID, stages); got != 81 {
		t.Errorf("first scheduling = %d, want 81", got)
	}
	if got := Probability(stages[1].ID, stages); got != 99 {
		t.Errorf("last scheduling = %d, want 99", got)
	}
}

func TestNextStage(t *testing.T) {
	stages := makePipeline(StageTypeOpen, StageTypeFollowUp, StageTypeWon)

	next, ok := NextStage(stages, stages[0].ID)
	if !ok || next.ID != stages[1].ID {
		t.Errorf("NextStage after first = (%v, %v), want second stage", next.ID, ok)
	}

	if _, ok := NextStage(stages, stages[2].ID); ok {
		t.Error("NextStage after last stage should report no next stage")
	}

	if _, ok := NextStage(stages, uuid.New()); ok {
		t.Error("NextStage with unknown stage should report no next stage")
	}
}
