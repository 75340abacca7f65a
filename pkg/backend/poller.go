package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PollState is the outcome of a bounded status poll:
// Pending -> {Succeeded, Failed, TimedOut, Cancelled}.
type PollState int

const (
	PollPending PollState = iota
	PollSucceeded
	PollFailed
	PollTimedOut
	PollCancelled
)

// String returns a readable name for logging.
func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSucceeded:
		return "succeeded"
	case PollFailed:
		return "failed"
	case PollTimedOut:
		return "timed_out"
	case PollCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("poll_state(%d)", int(s))
	}
}

const (
	// DefaultPollInterval is the fixed delay between status checks.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxAttempts bounds the poll to roughly five minutes.
	DefaultMaxAttempts = 60
)

// StatusSource fetches the current status of a task.
type StatusSource interface {
	GetTaskStatus(ctx context.Context, agentID, taskID string) (*TaskStatus, error)
}

// PollResult is the terminal result of one poll run. Status carries the last
// fetched task status when one was obtained; Err carries the failure cause
// for Failed and Cancelled.
type PollResult struct {
	State  PollState
	Status *TaskStatus
	Err    error
}

// StatusPoller repeatedly checks a task status on a fixed interval until the
// task reaches a terminal status, the attempt budget is exhausted, or the
// context is cancelled.
type StatusPoller struct {
	source      StatusSource
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewStatusPoller creates a poller with the given interval and attempt
// budget; zero values select the defaults.
func NewStatusPoller(source StatusSource, interval time.Duration, maxAttempts int, logger *slog.Logger) *StatusPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPoller{source: source, interval: interval, maxAttempts: maxAttempts, logger: logger}
}

// Wait polls until a terminal result. Transport errors on individual checks
// are logged and retried; only the exhausted attempt budget yields TimedOut,
// and only a backend-reported failure yields Failed.
func (p *StatusPoller) Wait(ctx context.Context, agentID, taskID string) PollResult {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		status, err := p.source.GetTaskStatus(ctx, agentID, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return PollResult{State: PollCancelled, Err: ctx.Err()}
			}
			p.logger.Warn("status poll attempt failed",
				"agent_id", agentID, "task_id", taskID, "attempt", attempt, "error", err)
		} else {
			switch status.Status {
			case "completed":
				return PollResult{State: PollSucceeded, Status: status}
			case "failed":
				return PollResult{State: PollFailed, Status: status, Err: fmt.Errorf("task failed: %s", status.Error)}
			}
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return PollResult{State: PollCancelled, Err: ctx.Err()}
		case <-ticker.C:
		}
	}

	return PollResult{State: PollTimedOut, Err: fmt.Errorf("task %s did not finish within %d attempts", taskID, p.maxAttempts)}
}
