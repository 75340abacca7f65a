package events

import (
	"testing"
	"time"
)

func sampleEvents(now time.Time) []DisplayEvent {
	return []DisplayEvent{
		{ID: "1", Type: EventWorkflowStarted, Level: LevelInfo, Title: "Workflow Started", Description: "run began", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "2", Type: EventToolCallFailed, Level: LevelError, Title: "Tool Call Failed", Description: "disk full", Timestamp: now.Add(-30 * time.Minute)},
		{ID: "3", Type: EventBudgetWarning, Level: LevelWarning, Title: "Budget Warning", Description: "80% consumed", Timestamp: now.Add(-10 * time.Minute)},
		{ID: "4", Type: EventWorkflowCompleted, Level: LevelSuccess, Title: "Workflow Completed", Description: "all done", Timestamp: now.Add(-time.Minute)},
	}
}

func TestFiltersByLevel(t *testing.T) {
	list := sampleEvents(time.Now())
	got := Filters{Levels: []Level{LevelError, LevelWarning}}.Apply(list)

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("unexpected ids %s, %s", got[0].ID, got[1].ID)
	}
}

func TestFiltersByType(t *testing.T) {
	list := sampleEvents(time.Now())
	got := Filters{Types: []EventType{EventWorkflowStarted}}.Apply(list)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected only the workflow_started event, got %d", len(got))
	}
}

func TestFiltersSearchCaseInsensitive(t *testing.T) {
	list := sampleEvents(time.Now())

	byTitle := Filters{Search: "BUDGET"}.Apply(list)
	if len(byTitle) != 1 || byTitle[0].ID != "3" {
		t.Fatalf("title search failed, got %d events", len(byTitle))
	}

	byDescription := Filters{Search: "Disk Full"}.Apply(list)
	if len(byDescription) != 1 || byDescription[0].ID != "2" {
		t.Fatalf("description search failed, got %d events", len(byDescription))
	}
}

func TestFiltersDateRange(t *testing.T) {
	now := time.Now()
	list := sampleEvents(now)
	from := now.Add(-45 * time.Minute)
	got := Filters{From: &from}.Apply(list)
	if len(got) != 3 {
		t.Fatalf("expected 3 events after cutoff, got %d", len(got))
	}
}

func TestFiltersEmptySelectionIsNoRestriction(t *testing.T) {
	list := sampleEvents(time.Now())
	got := Filters{}.Apply(list)
	if len(got) != len(list) {
		t.Fatalf("empty filters must pass everything, got %d of %d", len(got), len(list))
	}
}

func TestFiltersDoNotMutateInput(t *testing.T) {
	list := sampleEvents(time.Now())
	before := len(list)
	_ = Filters{Levels: []Level{LevelError}}.Apply(list)
	if len(list) != before {
		t.Fatalf("filtering mutated the input list: %d -> %d", before, len(list))
	}
	if list[0].ID != "1" || list[3].ID != "4" {
		t.Error("filtering reordered the input list")
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Now()
	list := sampleEvents(now)
	stats := ComputeStats(list, now)

	if stats.Total != 4 {
		t.Errorf("expected total 4, got %d", stats.Total)
	}

	levelSum := 0
	for _, n := range stats.ByLevel {
		levelSum += n
	}
	if levelSum != stats.Total {
		t.Errorf("sum of level counts %d != total %d", levelSum, stats.Total)
	}

	typeSum := 0
	for _, n := range stats.ByType {
		typeSum += n
	}
	if typeSum != stats.Total {
		t.Errorf("sum of type counts %d != total %d", typeSum, stats.Total)
	}

	// Events 2, 3 and 4 fall within the trailing hour.
	if stats.RecentActivity != 3 {
		t.Errorf("expected 3 recent events, got %d", stats.RecentActivity)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, time.Now())
	if stats.Total != 0 || stats.RecentActivity != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}
