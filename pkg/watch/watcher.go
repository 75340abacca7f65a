// Package watch composes the event store, the stream transport and the
// filter projector into one view-model per (agent, task) pair.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentops/taskwatch/pkg/events"
	"github.com/agentops/taskwatch/pkg/store"
	"github.com/agentops/taskwatch/pkg/stream"
)

// reconnectGap is the pause between tearing down the old connection and
// opening the new one during a refresh, so the two never overlap.
const reconnectGap = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// AutoConnect opens the live stream as soon as Start is called.
	AutoConnect    bool
	PageSize       int
	Reconnect      bool
	ReconnectDelay time.Duration
	Logger         *slog.Logger

	// OnError receives historical-load failures.
	OnError func(error)
	// OnChange fires after any state change; consumers re-render on it.
	OnChange func()
}

// View is an immutable snapshot of the watcher state for rendering.
type View struct {
	Events     []events.DisplayEvent
	Filtered   []events.DisplayEvent
	Stats      events.Stats
	Loading    bool
	Error      string
	Connected  bool
	Filters    events.Filters
	Pagination store.Pagination
}

// Watcher owns one store and one transport adapter for a single
// (agent, task) pair. Instances are independent; nothing is shared
// across pairs.
type Watcher struct {
	agentID string
	taskID  string
	opts    Options
	logger  *slog.Logger

	store   *store.Store
	adapter *stream.Adapter

	mu      sync.Mutex
	filters events.Filters
	// gapTimer is the pending post-refresh reconnect, if any. Disconnect and
	// Close stop it so a refresh in flight cannot revive a torn-down stream.
	gapTimer *time.Timer
	closed   bool
}

// New creates a watcher. source serves the historical page; streamBaseURL is
// the SSE endpoint prefix (e.g. "http://host/api/sse").
func New(source store.HistorySource, streamBaseURL, agentID, taskID string, opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		agentID: agentID,
		taskID:  taskID,
		opts:    opts,
		logger:  logger,
	}

	w.store = store.New(store.Config{
		AgentID:  agentID,
		TaskID:   taskID,
		Source:   source,
		PageSize: opts.PageSize,
		Logger:   logger,
		OnError:  opts.OnError,
		OnChange: opts.OnChange,
	})

	w.adapter = stream.NewAdapter(stream.Config{
		BaseURL:        streamBaseURL,
		AgentID:        agentID,
		TaskID:         taskID,
		Reconnect:      opts.Reconnect,
		ReconnectDelay: opts.ReconnectDelay,
		Logger:         logger,
		OnMessage:      w.handleMessage,
		OnError:        func(error) { w.notify() },
		OnClose:        w.notify,
	})

	return w
}

// Start seeds the store with the historical page and, when auto-connect is
// enabled, opens the live stream. The two run concurrently; a live event
// arriving during the load is queued by the store and replayed afterwards.
func (w *Watcher) Start(ctx context.Context) error {
	if w.opts.AutoConnect {
		if err := w.Connect(); err != nil {
			return err
		}
	}
	return w.store.LoadHistory(ctx)
}

// handleMessage maps one stream message and merges it into the store.
func (w *Watcher) handleMessage(msg stream.Message) {
	ev := events.MapStreamEvent(w.taskID, events.StreamEnvelope{
		EventName: msg.Type,
		Payload:   msg.Data,
	})
	w.store.MergeLiveEvent(ev)
}

// Connect opens the live stream connection.
func (w *Watcher) Connect() error {
	w.mu.Lock()
	w.closed = false
	w.mu.Unlock()
	return w.adapter.Connect()
}

// Disconnect closes the live stream, suppresses reconnection and cancels a
// pending post-refresh reconnect.
func (w *Watcher) Disconnect() {
	w.mu.Lock()
	w.stopGapTimerLocked()
	w.adapter.Disconnect()
	w.mu.Unlock()
	w.notify()
}

// Refresh clears the store, re-establishes the stream connection after a
// short gap, and re-runs the historical load.
func (w *Watcher) Refresh(ctx context.Context) error {
	wasConnected := w.adapter.State() == stream.StateOpen || w.adapter.State() == stream.StateConnecting
	w.adapter.Disconnect()
	w.store.Reset()

	if wasConnected || w.opts.AutoConnect {
		w.mu.Lock()
		w.stopGapTimerLocked()
		if !w.closed {
			w.gapTimer = time.AfterFunc(reconnectGap, w.reconnectAfterGap)
		}
		w.mu.Unlock()
	}

	return w.store.LoadHistory(ctx)
}

// reconnectAfterGap runs from the gap timer. Holding the mutex across the
// closed check and the connect keeps it atomic with respect to Close, so a
// Close landing inside the gap stays final.
func (w *Watcher) reconnectAfterGap() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if err := w.adapter.Connect(); err != nil {
		w.logger.Warn("reconnect after refresh failed", "error", err)
	}
}

func (w *Watcher) stopGapTimerLocked() {
	if w.gapTimer != nil {
		w.gapTimer.Stop()
		w.gapTimer = nil
	}
}

// ClearEvents empties the event list without touching the connection.
func (w *Watcher) ClearEvents() {
	w.store.Clear()
}

// UpdateFilters replaces the active filter set.
func (w *Watcher) UpdateFilters(f events.Filters) {
	w.mu.Lock()
	w.filters = f
	w.mu.Unlock()
	w.notify()
}

// Filters returns the active filter set.
func (w *Watcher) Filters() events.Filters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filters
}

// Connected reports whether the live stream is open.
func (w *Watcher) Connected() bool {
	return w.adapter.Connected()
}

// Snapshot projects the current state into a renderable view. Filtering and
// stats are recomputed on every call; the underlying list is never mutated.
func (w *Watcher) Snapshot() View {
	w.mu.Lock()
	filters := w.filters
	w.mu.Unlock()

	list := w.store.Events()
	filtered := filters.Apply(list)

	return View{
		Events:     list,
		Filtered:   filtered,
		Stats:      events.ComputeStats(filtered, time.Now()),
		Loading:    w.store.Loading(),
		Error:      w.store.Err(),
		Connected:  w.adapter.Connected(),
		Filters:    filters,
		Pagination: w.store.Pagination(),
	}
}

// Close releases the watcher's transport resources. It is terminal until an
// explicit Connect: neither the stream's own reconnect loop nor a pending
// post-refresh timer may open a connection afterwards.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopGapTimerLocked()
	w.adapter.Disconnect()
	w.mu.Unlock()
}

func (w *Watcher) notify() {
	if w.opts.OnChange != nil {
		w.opts.OnChange()
	}
}
