package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultClientConfig()
	config.BaseURL = server.URL
	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, server
}

func TestListTaskEvents(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/agent-1/tasks/task-1/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("page_size"); got != "100" {
			t.Errorf("expected page_size=100, got %s", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing request id header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"id": "e1", "event_type": "workflow_started", "timestamp": "2026-08-24T10:00:00Z", "message": "go"},
			},
			"page": 1, "page_size": 100, "total": 1, "has_next": false,
		})
	}))

	page, err := client.ListTaskEvents(context.Background(), "agent-1", "task-1", 1, 100)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != "e1" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.HasNext {
		t.Error("expected has_next=false")
	}
}

func TestSendMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/agents/agent-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["message"] != "hello" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-9", "timestamp": "2026-08-24T10:00:00Z"})
	}))

	result, err := client.SendMessage(context.Background(), "agent-1", "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if result.TaskID != "task-9" {
		t.Errorf("unexpected task id %s", result.TaskID)
	}
}

func TestGetTaskStatusCachesTerminal(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"status": "completed", "content": "done"})
	}))

	for i := 0; i < 3; i++ {
		status, err := client.GetTaskStatus(context.Background(), "a", "t")
		if err != nil {
			t.Fatalf("status fetch %d failed: %v", i, err)
		}
		if status.Status != "completed" {
			t.Errorf("unexpected status %s", status.Status)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("terminal status not cached: %d backend calls", calls.Load())
	}
}

func TestGetTaskStatusDoesNotCachePending(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"status": "running"})
	}))

	for i := 0; i < 3; i++ {
		if _, err := client.GetTaskStatus(context.Background(), "a", "t"); err != nil {
			t.Fatalf("status fetch failed: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("pending status must not be cached: %d backend calls", calls.Load())
	}
}

func TestControlActions(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/agents/a/tasks/t/pause", "/v1/agents/a/tasks/t/resume":
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"status": "ok"}})
		case "/v1/agents/a/tasks/t/cancel":
			json.NewEncoder(w).Encode(map[string]any{"error": "task already completed"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	if _, err := client.PauseTask(ctx, "a", "t"); err != nil {
		t.Errorf("pause failed: %v", err)
	}
	if _, err := client.ResumeTask(ctx, "a", "t"); err != nil {
		t.Errorf("resume failed: %v", err)
	}
	if _, err := client.CancelTask(ctx, "a", "t"); err == nil {
		t.Error("expected backend-reported error from cancel")
	}
}

func TestHTTPErrorSurfacesBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent not found", http.StatusNotFound)
	}))

	_, err := client.ListTaskEvents(context.Background(), "missing", "t", 1, 100)
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(&ClientConfig{}); err == nil {
		t.Fatal("expected error without base URL")
	}
}
