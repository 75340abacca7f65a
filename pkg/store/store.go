// Package store maintains the authoritative in-memory event list for one
// (agent, task) pair: time-ordered, deduplicated by event id, fed by both
// the one-shot historical load and the live stream.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/agentops/taskwatch/pkg/events"
)

// DefaultPageSize is the historical page size requested on load.
const DefaultPageSize = 100

// HistorySource fetches one page of historical events from the backend.
type HistorySource interface {
	ListTaskEvents(ctx context.Context, agentID, taskID string, page, pageSize int) (*events.EventPage, error)
}

// Pagination describes the most recent historical page.
type Pagination struct {
	Page     int
	PageSize int
	Total    int
	HasNext  bool
}

// Config holds store construction parameters.
type Config struct {
	AgentID  string
	TaskID   string
	Source   HistorySource
	PageSize int
	Logger   *slog.Logger

	// OnError is invoked with historical-load failures, in addition to the
	// readable error string kept in store state.
	OnError func(error)
	// OnChange is invoked after every state mutation.
	OnChange func()
}

// Store is the event reducer. All mutations run under one mutex; a merge
// always completes before the next begins.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	list       []events.DisplayEvent
	loading    bool
	loaded     bool // one-shot latch for LoadHistory
	errMsg     string
	pagination Pagination

	// Live events arriving while a historical load is in flight are queued
	// here and replayed after the replacement, so none are dropped by the
	// full replace.
	pending []events.DisplayEvent
}

// New creates an empty store for one (agent, task) pair.
func New(cfg Config) *Store {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, logger: logger}
}

// LoadHistory fetches one page of historical events and replaces the list
// with the result. A one-shot latch makes repeated calls no-ops until Reset,
// on failure as well as on success: a failed load is not retried
// automatically, recovery goes through the user-triggered refresh. The error
// is kept as a readable string and previously loaded events are preserved.
func (s *Store) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded || s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.errMsg = ""
	pageSize := s.cfg.PageSize
	s.mu.Unlock()
	s.notify()

	page, err := s.cfg.Source.ListTaskEvents(ctx, s.cfg.AgentID, s.cfg.TaskID, 1, pageSize)

	s.mu.Lock()
	s.loading = false
	s.loaded = true
	if err != nil {
		s.errMsg = err.Error()
		for _, ev := range s.pending {
			s.mergeLocked(ev)
		}
		s.pending = nil
		s.sortLocked()
		s.mu.Unlock()
		s.logger.Warn("historical load failed",
			"agent_id", s.cfg.AgentID, "task_id", s.cfg.TaskID, "error", err)
		if s.cfg.OnError != nil {
			s.cfg.OnError(err)
		}
		s.notify()
		return err
	}

	list := make([]events.DisplayEvent, 0, len(page.Events))
	for _, rec := range page.Events {
		list = append(list, events.MapHistoricalEvent(rec))
	}
	s.list = list
	s.pagination = Pagination{
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
		HasNext:  page.HasNext,
	}
	for _, ev := range s.pending {
		s.mergeLocked(ev)
	}
	s.pending = nil
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// MergeLiveEvent folds one stream-sourced event into the list: any existing
// entry with the same id is replaced, then the list is re-sorted ascending
// by timestamp. During an in-flight historical load the event is queued and
// replayed after the replacement completes.
func (s *Store) MergeLiveEvent(ev events.DisplayEvent) {
	s.mu.Lock()
	if s.loading {
		s.pending = append(s.pending, ev)
		s.mu.Unlock()
		return
	}
	s.mergeLocked(ev)
	s.sortLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) mergeLocked(ev events.DisplayEvent) {
	for i := range s.list {
		if s.list[i].ID == ev.ID {
			s.list = append(s.list[:i], s.list[i+1:]...)
			break
		}
	}
	s.list = append(s.list, ev)
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.list, func(i, j int) bool {
		return s.list[i].Timestamp.Before(s.list[j].Timestamp)
	})
}

// Reset clears the list, the error and the one-shot latch so the next
// LoadHistory fetches again. Used by the refresh flow.
func (s *Store) Reset() {
	s.mu.Lock()
	s.list = nil
	s.pending = nil
	s.loaded = false
	s.errMsg = ""
	s.pagination = Pagination{}
	s.mu.Unlock()
	s.notify()
}

// Clear empties the list and clears any error without touching the latch or
// the connection state owned by the transport.
func (s *Store) Clear() {
	s.mu.Lock()
	s.list = nil
	s.pending = nil
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()
}

// Events returns a copy of the current event list.
func (s *Store) Events() []events.DisplayEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.DisplayEvent, len(s.list))
	copy(out, s.list)
	return out
}

// Loading reports whether a historical load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the readable error from the last failed historical load, or
// the empty string.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Pagination returns the metadata of the last loaded page.
func (s *Store) Pagination() Pagination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination
}

func (s *Store) notify() {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange()
	}
}
