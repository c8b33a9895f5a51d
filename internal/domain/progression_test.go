package domain

import (
	"testing"
	"time"
)

func TestStatusTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to ProgressionStatus
		want     bool
	}{
		{ProgressionActive, ProgressionPaused, true},
		{ProgressionActive, ProgressionCompleted, true},
		{ProgressionActive, ProgressionDropped, true},
		{ProgressionPaused, ProgressionActive, true},
		{ProgressionPaused, ProgressionDropped, true},
		{ProgressionPaused, ProgressionCompleted, false},
		{ProgressionCompleted, ProgressionActive, false},
		{ProgressionCompleted, ProgressionDropped, false},
		{ProgressionDropped, ProgressionActive, false},
		{ProgressionDropped, ProgressionPaused, false},
		{ProgressionActive, ProgressionActive, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !ProgressionCompleted.IsTerminal() || !ProgressionDropped.IsTerminal() {
		t.Fatal("completed and dropped must be terminal")
	}
	if ProgressionActive.IsTerminal() || ProgressionPaused.IsTerminal() {
		t.Fatal("active and paused must not be terminal")
	}
	if !ProgressionActive.IsOpen() || !ProgressionPaused.IsOpen() {
		t.Fatal("active and paused must be open")
	}
}

func TestJourneyEntryStage(t *testing.T) {
	j := &Journey{Stages: []Stage{
		{ID: "a"},
		{ID: "b", IsEntryPoint: true},
	}}
	entry := j.EntryStage()
	if entry == nil || entry.ID != "b" {
		t.Fatalf("expected entry stage b, got %+v", entry)
	}

	none := &Journey{Stages: []Stage{{ID: "a"}}}
	if none.EntryStage() != nil {
		t.Fatal("expected nil entry stage")
	}
}

func TestContactJourneyDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(36 * time.Hour)
	cj := &ContactJourney{StartedAt: start}
	if cj.Duration() != 0 {
		t.Fatal("incomplete journey should have zero duration")
	}
	cj.CompletedAt = &end
	if cj.Duration() != 36*time.Hour {
		t.Fatalf("expected 36h, got %s", cj.Duration())
	}
}
