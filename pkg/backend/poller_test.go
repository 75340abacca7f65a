package backend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedStatus returns each status in sequence, repeating the last one.
type scriptedStatus struct {
	statuses []*TaskStatus
	errs     []error
	calls    atomic.Int32
}

func (s *scriptedStatus) GetTaskStatus(ctx context.Context, agentID, taskID string) (*TaskStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

func TestPollerSucceeds(t *testing.T) {
	source := &scriptedStatus{statuses: []*TaskStatus{
		{Status: "running"},
		{Status: "running"},
		{Status: "completed", Content: "answer"},
	}}
	poller := NewStatusPoller(source, time.Millisecond, 10, nil)

	result := poller.Wait(context.Background(), "a", "t")
	if result.State != PollSucceeded {
		t.Fatalf("expected succeeded, got %s", result.State)
	}
	if result.Status.Content != "answer" {
		t.Errorf("unexpected content %q", result.Status.Content)
	}
}

func TestPollerFails(t *testing.T) {
	source := &scriptedStatus{statuses: []*TaskStatus{
		{Status: "running"},
		{Status: "failed", Error: "agent crashed"},
	}}
	poller := NewStatusPoller(source, time.Millisecond, 10, nil)

	result := poller.Wait(context.Background(), "a", "t")
	if result.State != PollFailed {
		t.Fatalf("expected failed, got %s", result.State)
	}
	if result.Err == nil {
		t.Error("expected failure cause")
	}
}

func TestPollerTimesOut(t *testing.T) {
	source := &scriptedStatus{statuses: []*TaskStatus{{Status: "running"}}}
	poller := NewStatusPoller(source, time.Millisecond, 5, nil)

	result := poller.Wait(context.Background(), "a", "t")
	if result.State != PollTimedOut {
		t.Fatalf("expected timed out, got %s", result.State)
	}
	if n := source.calls.Load(); n != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", n)
	}
}

func TestPollerRetriesTransportErrors(t *testing.T) {
	source := &scriptedStatus{
		statuses: []*TaskStatus{nil, {Status: "completed"}},
		errs:     []error{errors.New("connection refused"), nil},
	}
	poller := NewStatusPoller(source, time.Millisecond, 10, nil)

	result := poller.Wait(context.Background(), "a", "t")
	if result.State != PollSucceeded {
		t.Fatalf("expected success after transient error, got %s", result.State)
	}
}

func TestPollerCancellation(t *testing.T) {
	source := &scriptedStatus{statuses: []*TaskStatus{{Status: "running"}}}
	poller := NewStatusPoller(source, 50*time.Millisecond, 60, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := poller.Wait(ctx, "a", "t")
	if result.State != PollCancelled {
		t.Fatalf("expected cancelled, got %s", result.State)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt the wait promptly")
	}
}
