package events

import (
	"strings"
	"time"
)

// Filters selects a subset of events for display. All set conditions are
// AND-combined; a zero field places no restriction. Filtering is a pure
// projection and never mutates the underlying event list.
type Filters struct {
	Types  []EventType `json:"types,omitempty"`
	Levels []Level     `json:"levels,omitempty"`
	Search string      `json:"search,omitempty"`
	From   *time.Time  `json:"from,omitempty"`
	To     *time.Time  `json:"to,omitempty"`
}

// Match reports whether a single event passes the filter.
func (f Filters) Match(ev DisplayEvent) bool {
	if len(f.Types) > 0 && !containsType(f.Types, ev.Type) {
		return false
	}
	if len(f.Levels) > 0 && !containsLevel(f.Levels, ev.Level) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(ev.Title), needle) &&
			!strings.Contains(strings.ToLower(ev.Description), needle) {
			return false
		}
	}
	if f.From != nil && ev.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && ev.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// Apply returns the events that pass the filter, preserving order. The
// input slice is never modified.
func (f Filters) Apply(list []DisplayEvent) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(list))
	for _, ev := range list {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func containsType(set []EventType, t EventType) bool {
	for _, candidate := range set {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsLevel(set []Level, l Level) bool {
	for _, candidate := range set {
		if candidate == l {
			return true
		}
	}
	return false
}

// Stats aggregates a (usually already filtered) event list. RecentActivity
// counts events within the hour preceding the evaluation time; it is
// recomputed on every call, never cached.
type Stats struct {
	Total          int               `json:"total"`
	ByLevel        map[Level]int     `json:"by_level"`
	ByType         map[EventType]int `json:"by_type"`
	RecentActivity int               `json:"recent_activity"`
}

// ComputeStats derives aggregate counts from an event list relative to now.
func ComputeStats(list []DisplayEvent, now time.Time) Stats {
	stats := Stats{
		Total:   len(list),
		ByLevel: make(map[Level]int),
		ByType:  make(map[EventType]int),
	}
	cutoff := now.Add(-time.Hour)
	for _, ev := range list {
		stats.ByLevel[ev.Level]++
		stats.ByType[ev.Type]++
		if ev.Timestamp.After(cutoff) {
			stats.RecentActivity++
		}
	}
	return stats
}
