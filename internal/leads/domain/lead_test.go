package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRetireActivePlaybook(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	completed := started.Add(72 * time.Hour)
	active := ActivePlaybook{PlaybookID: uuid.New(), PlaybookName: "Nurture", StartedAt: started}

	history := RetireActivePlaybook(nil, active, completed)
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	entry := history[0]
	if entry.PlaybookID != active.PlaybookID || entry.PlaybookName != "Nurture" {
		t.Fatalf("entry = %+v", entry)
	}
	if !entry.StartedAt.Equal(started) || !entry.CompletedAt.Equal(completed) {
		t.Fatalf("entry times = %+v", entry)
	}

	// Append preserves earlier entries.
	second := RetireActivePlaybook(history, active, completed.Add(time.Hour))
	if len(second) != 2 || len(history) != 1 {
		t.Fatalf("append must not mutate the original: %d, %d", len(second), len(history))
	}
}

func TestHistoryMarksComplete(t *testing.T) {
	pbID := uuid.New()
	history := []PlaybookHistoryEntry{{PlaybookID: pbID}}

	if !HistoryMarksComplete(history, pbID) {
		t.Fatal("expected completion to be found")
	}
	if HistoryMarksComplete(history, uuid.New()) {
		t.Fatal("unrelated playbook must not be marked complete")
	}
	if HistoryMarksComplete(nil, pbID) {
		t.Fatal("empty history marks nothing complete")
	}
}

func TestReviveLastPlaybook(t *testing.T) {
	started := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	first := PlaybookHistoryEntry{PlaybookID: uuid.New(), PlaybookName: "First", StartedAt: started.Add(-time.Hour)}
	last := PlaybookHistoryEntry{PlaybookID: uuid.New(), PlaybookName: "Last", StartedAt: started, CompletedAt: started.Add(time.Hour)}
	history := []PlaybookHistoryEntry{first, last}

	active, trimmed, ok := ReviveLastPlaybook(history)
	if !ok {
		t.Fatal("expected a revival")
	}
	if active.PlaybookID != last.PlaybookID {
		t.Fatalf("revived %s, want last entry", active.PlaybookName)
	}
	if !active.StartedAt.Equal(started) {
		t.Fatal("revival must keep the original StartedAt")
	}
	if len(trimmed) != 1 || trimmed[0].PlaybookID != first.PlaybookID {
		t.Fatalf("trimmed = %+v", trimmed)
	}
	if len(history) != 2 {
		t.Fatal("revival must not mutate the original history")
	}

	if _, _, ok := ReviveLastPlaybook(nil); ok {
		t.Fatal("empty history cannot revive")
	}
}
