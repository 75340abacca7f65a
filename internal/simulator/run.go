package simulator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentops/taskwatch/pkg/events"
)

// runRegistry tracks simulated task runs keyed by (agent, task).
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*taskRun
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*taskRun)}
}

func runKey(agentID, taskID string) string {
	return agentID + "/" + taskID
}

func (r *runRegistry) create(agentID, taskID string, iterations int) *taskRun {
	run := &taskRun{
		agentID:    agentID,
		taskID:     taskID,
		iterations: iterations,
		status:     "running",
		subs:       make(map[chan events.TaskEventRecord]struct{}),
		resume:     make(chan struct{}, 1),
		cancelled:  make(chan struct{}),
	}
	r.mu.Lock()
	r.runs[runKey(agentID, taskID)] = run
	r.mu.Unlock()
	return run
}

func (r *runRegistry) get(agentID, taskID string) (*taskRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runKey(agentID, taskID)]
	return run, ok
}

// taskRun generates a scripted workflow event sequence for one task and
// fans it out to stream subscribers while accumulating history.
type taskRun struct {
	agentID    string
	taskID     string
	iterations int

	mu        sync.Mutex
	history   []events.TaskEventRecord
	status    string
	content   string
	errMsg    string
	paused    bool
	finished  bool
	subs      map[chan events.TaskEventRecord]struct{}
	resume    chan struct{}
	cancelled chan struct{}
}

func (t *taskRun) subscribe() chan events.TaskEventRecord {
	ch := make(chan events.TaskEventRecord, 64)
	t.mu.Lock()
	if t.finished {
		close(ch)
	} else {
		t.subs[ch] = struct{}{}
	}
	t.mu.Unlock()
	return ch
}

func (t *taskRun) unsubscribe(ch chan events.TaskEventRecord) {
	t.mu.Lock()
	delete(t.subs, ch)
	t.mu.Unlock()
}

func (t *taskRun) statusSnapshot() (status, content, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.content, t.errMsg
}

func (t *taskRun) control(action string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return errors.New("task already completed")
	}
	switch action {
	case "pause":
		t.paused = true
	case "resume":
		if t.paused {
			t.paused = false
			select {
			case t.resume <- struct{}{}:
			default:
			}
		}
	case "cancel":
		select {
		case <-t.cancelled:
		default:
			close(t.cancelled)
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

// emit appends one event to history and broadcasts it. Slow subscribers are
// skipped rather than blocking the generator.
func (t *taskRun) emit(eventType events.EventType, message string, m *metrics) {
	rec := events.TaskEventRecord{
		ID:        uuid.NewString(),
		EventType: string(eventType),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Message:   message,
		Metadata:  map[string]any{"agent_id": t.agentID, "task_id": t.taskID},
	}

	t.mu.Lock()
	t.history = append(t.history, rec)
	for ch := range t.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	t.mu.Unlock()

	m.eventsPublished.WithLabelValues(t.agentID).Inc()
}

// generate drives the scripted run to completion, honoring pause and cancel.
func (t *taskRun) generate(tick time.Duration, m *metrics) {
	defer t.finish()

	t.emit(events.EventWorkflowStarted, "workflow run started", m)

	for i := 1; i <= t.iterations; i++ {
		steps := []struct {
			eventType events.EventType
			message   string
		}{
			{events.EventIterationStarted, fmt.Sprintf("iteration %d started", i)},
			{events.EventLLMCallStarted, fmt.Sprintf("iteration %d: prompting model", i)},
			{events.EventLLMCallCompleted, fmt.Sprintf("iteration %d: model responded", i)},
			{events.EventToolCallStarted, fmt.Sprintf("iteration %d: invoking tool", i)},
			{events.EventToolCallCompleted, fmt.Sprintf("iteration %d: tool finished", i)},
			{events.EventIterationCompleted, fmt.Sprintf("iteration %d completed", i)},
		}
		for _, step := range steps {
			if !t.await(tick) {
				t.emit(events.EventWorkflowCancelled, "workflow run cancelled", m)
				t.setStatus("cancelled", "", "cancelled by user")
				return
			}
			t.emit(step.eventType, step.message, m)
		}
		if i == t.iterations-1 {
			t.emit(events.EventBudgetWarning, "budget 80% consumed", m)
		}
	}

	t.emit(events.EventWorkflowCompleted, "workflow run completed", m)
	t.setStatus("completed", fmt.Sprintf("finished %d iterations", t.iterations), "")
}

// await sleeps one tick, blocking while paused; false means cancelled.
func (t *taskRun) await(tick time.Duration) bool {
	select {
	case <-t.cancelled:
		return false
	case <-time.After(tick):
	}

	for {
		t.mu.Lock()
		paused := t.paused
		t.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-t.cancelled:
			return false
		case <-t.resume:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (t *taskRun) setStatus(status, content, errMsg string) {
	t.mu.Lock()
	t.status = status
	t.content = content
	t.errMsg = errMsg
	t.mu.Unlock()
}

// finish marks the run terminal and closes subscriber channels.
func (t *taskRun) finish() {
	t.mu.Lock()
	t.finished = true
	if t.status == "running" {
		t.status = "completed"
	}
	for ch := range t.subs {
		close(ch)
		delete(t.subs, ch)
	}
	t.mu.Unlock()
}

// page returns one page of accumulated history.
func (t *taskRun) page(page, pageSize int) events.EventPage {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := len(t.history)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := make([]events.TaskEventRecord, end-start)
	copy(out, t.history[start:end])
	return events.EventPage{
		Events:   out,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasNext:  end < total,
	}
}
