// Package stream implements the live task-event transport: one Server-Sent
// Events connection per (agent, task) pair with fixed-delay automatic
// reconnection.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// State describes the adapter's connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateError
)

// String returns a readable name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrMissingIDs is returned when Connect is called without both an agent id
// and a task id. The adapter never attempts a connection in that case,
// regardless of the reconnect setting.
var ErrMissingIDs = errors.New("stream: agent id and task id are required")

// DefaultReconnectDelay is the fixed interval between a dropped connection
// and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// Message is one event received from the stream.
type Message struct {
	Type string
	Data string
}

// Config holds the adapter configuration. Handlers are invoked sequentially
// from the adapter's read goroutine; each callback runs to completion before
// the next message is dispatched.
type Config struct {
	// BaseURL is the stream endpoint prefix, e.g. "http://host/api/sse".
	BaseURL string
	AgentID string
	TaskID  string

	// Reconnect enables automatic reconnection after close or error.
	Reconnect      bool
	ReconnectDelay time.Duration

	// HTTPClient overrides the default client. It must not set a global
	// timeout, since the stream connection is long-lived.
	HTTPClient *http.Client
	Logger     *slog.Logger

	OnMessage func(Message)
	OnError   func(error)
	OnClose   func()
}

// Adapter owns exactly one live stream connection at a time. Reconnect
// scheduling uses a single pending timer, replaced on each cycle, never
// stacked.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	timer      *time.Timer
	terminated bool
	gen        int
}

// NewAdapter creates an adapter for one (agent, task) pair.
func NewAdapter(cfg Config) *Adapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, client: client, logger: logger, state: StateIdle}
}

// State returns the current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Connected reports whether the connection is currently open.
func (a *Adapter) Connected() bool {
	return a.State() == StateOpen
}

// Connect opens the stream connection. It is a no-op while a connection is
// already being established or open. An explicit Connect after Disconnect
// re-arms reconnection.
func (a *Adapter) Connect() error {
	if a.cfg.AgentID == "" || a.cfg.TaskID == "" {
		return ErrMissingIDs
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateConnecting || a.state == StateOpen {
		return nil
	}

	a.terminated = false
	a.startLocked()
	return nil
}

// reconnect re-opens the connection from a fired reconnect timer. Unlike
// Connect it never re-arms a terminated adapter, so a Disconnect racing an
// already-fired timer stays final.
func (a *Adapter) reconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminated || a.state == StateConnecting || a.state == StateOpen {
		return
	}
	a.startLocked()
}

func (a *Adapter) startLocked() {
	a.stopTimerLocked()
	if a.cancel != nil {
		// Release the context of the previous, already-finished connection.
		a.cancel()
	}
	a.state = StateConnecting
	a.gen++

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.run(ctx, a.gen)
}

// Disconnect tears down any open connection, cancels a pending reconnect and
// leaves the adapter in the terminal idle state. It is idempotent.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.terminated = true
	a.stopTimerLocked()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.state = StateIdle
}

func (a *Adapter) url() string {
	return fmt.Sprintf("%s/agents/%s/tasks/%s/events/stream",
		strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.AgentID, a.cfg.TaskID)
}

func (a *Adapter) run(ctx context.Context, gen int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url(), nil)
	if err != nil {
		a.fail(gen, fmt.Errorf("failed to create stream request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.fail(gen, fmt.Errorf("failed to connect stream: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.fail(gen, fmt.Errorf("stream HTTP error %d", resp.StatusCode))
		return
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		a.fail(gen, fmt.Errorf("expected text/event-stream, got %s", ct))
		return
	}

	if !a.transition(gen, StateOpen) {
		return
	}
	a.logger.Debug("stream connected", "agent_id", a.cfg.AgentID, "task_id", a.cfg.TaskID)

	err = a.readLoop(ctx, resp)
	if ctx.Err() != nil {
		// Disconnect already settled the state.
		return
	}
	if err != nil {
		a.fail(gen, fmt.Errorf("stream read error: %w", err))
		return
	}
	a.closed(gen)
}

// readLoop parses the SSE wire format: "event:" and "data:" lines
// accumulate until a blank line dispatches the message.
func (a *Adapter) readLoop(ctx context.Context, resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)

	var eventName string
	var data []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if len(data) > 0 {
				msg := Message{Type: eventName, Data: strings.Join(data, "\n")}
				if msg.Type == "" {
					msg.Type = "message"
				}
				if a.cfg.OnMessage != nil {
					a.cfg.OnMessage(msg)
				}
			}
			eventName = ""
			data = data[:0]
		case strings.HasPrefix(line, ":"):
			// Comment / keepalive.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
	return scanner.Err()
}

// transition moves to the target state if this goroutine still owns the
// connection; a stale generation means Disconnect or a newer Connect won.
func (a *Adapter) transition(gen int, target State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.terminated {
		return false
	}
	a.state = target
	return true
}

func (a *Adapter) fail(gen int, err error) {
	if !a.transition(gen, StateError) {
		return
	}
	a.logger.Warn("stream error", "agent_id", a.cfg.AgentID, "task_id", a.cfg.TaskID, "error", err)
	if a.cfg.OnError != nil {
		a.cfg.OnError(err)
	}
	a.scheduleReconnect()
}

func (a *Adapter) closed(gen int) {
	if !a.transition(gen, StateClosed) {
		return
	}
	a.logger.Debug("stream closed", "agent_id", a.cfg.AgentID, "task_id", a.cfg.TaskID)
	if a.cfg.OnClose != nil {
		a.cfg.OnClose()
	}
	a.scheduleReconnect()
}

func (a *Adapter) scheduleReconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cfg.Reconnect || a.terminated {
		return
	}
	a.stopTimerLocked()
	a.timer = time.AfterFunc(a.cfg.ReconnectDelay, a.reconnect)
}

func (a *Adapter) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
