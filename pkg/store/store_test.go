package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentops/taskwatch/pkg/events"
)

// fakeSource is a scripted HistorySource.
type fakeSource struct {
	mu    sync.Mutex
	page  *events.EventPage
	err   error
	calls int

	// blockUntil, when set, is closed by the test to release the fetch.
	blockUntil chan struct{}
	// entered is closed when the fetch has started.
	entered chan struct{}
}

func (f *fakeSource) ListTaskEvents(ctx context.Context, agentID, taskID string, page, pageSize int) (*events.EventPage, error) {
	f.mu.Lock()
	f.calls++
	entered := f.entered
	block := f.blockUntil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func historicalPage(ts ...time.Time) *events.EventPage {
	page := &events.EventPage{Page: 1, PageSize: 100}
	for i, stamp := range ts {
		page.Events = append(page.Events, events.TaskEventRecord{
			ID:        fmt.Sprintf("evt-%d", i+1),
			EventType: "iteration_started",
			Timestamp: stamp.Format(time.RFC3339),
			Message:   fmt.Sprintf("iteration %d", i+1),
		})
	}
	page.Total = len(page.Events)
	return page
}

func liveEvent(id string, ts time.Time, msg string) events.DisplayEvent {
	return events.DisplayEvent{
		ID:          id,
		Type:        events.EventIterationCompleted,
		Timestamp:   ts,
		Title:       "Iteration Completed",
		Description: msg,
		Level:       events.LevelSuccess,
	}
}

// Scenario A: empty store, three historical events T1<T2<T3.
func TestLoadHistoryOrdersEvents(t *testing.T) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{page: historicalPage(base, base.Add(time.Minute), base.Add(2*time.Minute))}
	s := New(Config{AgentID: "a", TaskID: "t", Source: source})

	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	list := s.Events()
	if len(list) != 3 {
		t.Fatalf("expected 3 events, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Timestamp.Before(list[i-1].Timestamp) {
			t.Errorf("list not sorted at index %d", i)
		}
	}
	if s.Loading() {
		t.Error("loading should be false after load")
	}
	if s.Err() != "" {
		t.Errorf("expected no error, got %q", s.Err())
	}
	if got := s.Pagination(); got.Total != 3 {
		t.Errorf("expected total 3, got %d", got.Total)
	}
}

func TestLoadHistoryLatch(t *testing.T) {
	source := &fakeSource{page: historicalPage(time.Now())}
	s := New(Config{AgentID: "a", TaskID: "t", Source: source})

	for i := 0; i < 3; i++ {
		if err := s.LoadHistory(context.Background()); err != nil {
			t.Fatalf("load %d failed: %v", i, err)
		}
	}
	if source.calls != 1 {
		t.Errorf("latch broken: expected 1 fetch, got %d", source.calls)
	}

	s.Reset()
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expected refetch after reset, got %d calls", source.calls)
	}
}

// Scenario B: a live event sharing an id with a loaded event replaces it
// without growing the list.
func TestMergeLiveEventDeduplicates(t *testing.T) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{page: historicalPage(base, base.Add(time.Minute), base.Add(2*time.Minute))}
	s := New(Config{AgentID: "a", TaskID: "t", Source: source})
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	s.MergeLiveEvent(liveEvent("evt-2", base.Add(time.Minute), "updated message"))

	list := s.Events()
	if len(list) != 3 {
		t.Fatalf("expected 3 events after dedup merge, got %d", len(list))
	}
	var found bool
	for _, ev := range list {
		if ev.ID == "evt-2" {
			found = true
			if ev.Description != "updated message" {
				t.Errorf("expected last-merged value, got %q", ev.Description)
			}
		}
	}
	if !found {
		t.Fatal("evt-2 missing after merge")
	}
}

func TestMergeLiveEventLastWriteWins(t *testing.T) {
	s := New(Config{AgentID: "a", TaskID: "t", Source: &fakeSource{page: historicalPage()}})
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.MergeLiveEvent(liveEvent("same-id", now, fmt.Sprintf("version %d", i)))
	}
	list := s.Events()
	if len(list) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(list))
	}
	if list[0].Description != "version 4" {
		t.Errorf("expected last-merged value, got %q", list[0].Description)
	}
}

func TestMergeKeepsSortOrder(t *testing.T) {
	s := New(Config{AgentID: "a", TaskID: "t", Source: &fakeSource{page: historicalPage()}})
	now := time.Now()
	s.MergeLiveEvent(liveEvent("late", now.Add(time.Minute), "late"))
	s.MergeLiveEvent(liveEvent("early", now.Add(-time.Minute), "early"))
	s.MergeLiveEvent(liveEvent("middle", now, "middle"))

	list := s.Events()
	if list[0].ID != "early" || list[1].ID != "middle" || list[2].ID != "late" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}
}

// Scenario C: a failing load keeps the list and surfaces a readable error.
func TestLoadHistoryFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("network error")}
	var callbackErr error
	s := New(Config{
		AgentID: "a", TaskID: "t", Source: source,
		OnError: func(err error) { callbackErr = err },
	})

	err := s.LoadHistory(context.Background())
	if err == nil {
		t.Fatal("expected load error")
	}
	if s.Err() != "network error" {
		t.Errorf("expected readable error, got %q", s.Err())
	}
	if s.Loading() {
		t.Error("loading must be false after failure")
	}
	if len(s.Events()) != 0 {
		t.Errorf("expected empty list, got %d events", len(s.Events()))
	}
	if callbackErr == nil {
		t.Error("error callback not invoked")
	}

	// Failure consumes the latch too: no automatic retry.
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("latched load must be a no-op, got %v", err)
	}
	if source.calls != 1 {
		t.Errorf("failed load retried automatically: %d calls", source.calls)
	}

	// Refresh is the recovery path.
	source.mu.Lock()
	source.err = nil
	source.page = historicalPage(time.Now())
	source.mu.Unlock()
	s.Reset()
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("retry after reset failed: %v", err)
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected 1 event after retry, got %d", len(s.Events()))
	}
}

// A live event arriving while the historical fetch is in flight must not be
// lost by the full replacement.
func TestLiveEventDuringLoadIsReplayed(t *testing.T) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		page:       historicalPage(base),
		blockUntil: make(chan struct{}),
		entered:    make(chan struct{}),
	}
	s := New(Config{AgentID: "a", TaskID: "t", Source: source})

	done := make(chan error, 1)
	go func() { done <- s.LoadHistory(context.Background()) }()

	<-source.entered
	s.MergeLiveEvent(liveEvent("live-1", base.Add(time.Second), "arrived mid-load"))
	close(source.blockUntil)

	if err := <-done; err != nil {
		t.Fatalf("load failed: %v", err)
	}

	list := s.Events()
	if len(list) != 2 {
		t.Fatalf("expected historical + queued live event, got %d", len(list))
	}
	if list[1].ID != "live-1" {
		t.Errorf("queued live event missing or misordered: %+v", list)
	}
}

func TestClearKeepsLatch(t *testing.T) {
	source := &fakeSource{page: historicalPage(time.Now())}
	s := New(Config{AgentID: "a", TaskID: "t", Source: source})
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	s.Clear()
	if len(s.Events()) != 0 {
		t.Error("clear did not empty the list")
	}
	if s.Err() != "" {
		t.Error("clear did not reset the error")
	}

	// Latch still set: no refetch.
	if err := s.LoadHistory(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("clear must not reset the latch, got %d calls", source.calls)
	}
}
