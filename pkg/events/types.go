// Package events defines the canonical task event model shared by the
// historical REST API and the live event stream, plus the pure mapping,
// filtering and aggregation functions that operate on it.
package events

import "time"

// EventType identifies one kind of workflow event emitted during a task run.
type EventType string

const (
	EventWorkflowStarted        EventType = "workflow_started"
	EventWorkflowCompleted      EventType = "workflow_completed"
	EventWorkflowFailed         EventType = "workflow_failed"
	EventWorkflowCancelled      EventType = "workflow_cancelled"
	EventIterationStarted       EventType = "iteration_started"
	EventIterationCompleted     EventType = "iteration_completed"
	EventLLMCallStarted         EventType = "llm_call_started"
	EventLLMCallCompleted       EventType = "llm_call_completed"
	EventLLMCallFailed          EventType = "llm_call_failed"
	EventToolCallStarted        EventType = "tool_call_started"
	EventToolCallCompleted      EventType = "tool_call_completed"
	EventToolCallFailed         EventType = "tool_call_failed"
	EventBudgetWarning          EventType = "budget_warning"
	EventBudgetExceeded         EventType = "budget_exceeded"
	EventHumanApprovalRequested EventType = "human_approval_requested"
	EventHumanApprovalReceived  EventType = "human_approval_received"

	// EventUnknown is the guaranteed default arm for wire names that do not
	// resolve to any known kind. Mapping never fails on unknown input.
	EventUnknown EventType = "unknown"
)

// Level classifies an event for display and aggregation purposes.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// TypeConfig is the static display configuration for one event type.
// Level is a pure function of the event type: a type always maps to
// exactly one level, regardless of the event source.
type TypeConfig struct {
	Title string
	Level Level
	Icon  string
}

// typeConfigs is the single lookup table used by both mappers.
var typeConfigs = map[EventType]TypeConfig{
	EventWorkflowStarted:        {Title: "Workflow Started", Level: LevelInfo, Icon: "play"},
	EventWorkflowCompleted:      {Title: "Workflow Completed", Level: LevelSuccess, Icon: "check-circle"},
	EventWorkflowFailed:         {Title: "Workflow Failed", Level: LevelError, Icon: "x-circle"},
	EventWorkflowCancelled:      {Title: "Workflow Cancelled", Level: LevelWarning, Icon: "ban"},
	EventIterationStarted:       {Title: "Iteration Started", Level: LevelInfo, Icon: "repeat"},
	EventIterationCompleted:     {Title: "Iteration Completed", Level: LevelSuccess, Icon: "check"},
	EventLLMCallStarted:         {Title: "LLM Call Started", Level: LevelInfo, Icon: "cpu"},
	EventLLMCallCompleted:       {Title: "LLM Call Completed", Level: LevelSuccess, Icon: "cpu"},
	EventLLMCallFailed:          {Title: "LLM Call Failed", Level: LevelError, Icon: "cpu"},
	EventToolCallStarted:        {Title: "Tool Call Started", Level: LevelInfo, Icon: "wrench"},
	EventToolCallCompleted:      {Title: "Tool Call Completed", Level: LevelSuccess, Icon: "wrench"},
	EventToolCallFailed:         {Title: "Tool Call Failed", Level: LevelError, Icon: "wrench"},
	EventBudgetWarning:          {Title: "Budget Warning", Level: LevelWarning, Icon: "alert-triangle"},
	EventBudgetExceeded:         {Title: "Budget Exceeded", Level: LevelError, Icon: "alert-octagon"},
	EventHumanApprovalRequested: {Title: "Approval Requested", Level: LevelWarning, Icon: "user-check"},
	EventHumanApprovalReceived:  {Title: "Approval Received", Level: LevelSuccess, Icon: "user-check"},
	EventUnknown:                {Title: "Unknown Event", Level: LevelInfo, Icon: "circle"},
}

// KnownTypes returns the closed enumeration of workflow event types,
// excluding the unknown default arm.
func KnownTypes() []EventType {
	return []EventType{
		EventWorkflowStarted, EventWorkflowCompleted, EventWorkflowFailed, EventWorkflowCancelled,
		EventIterationStarted, EventIterationCompleted,
		EventLLMCallStarted, EventLLMCallCompleted, EventLLMCallFailed,
		EventToolCallStarted, EventToolCallCompleted, EventToolCallFailed,
		EventBudgetWarning, EventBudgetExceeded,
		EventHumanApprovalRequested, EventHumanApprovalReceived,
	}
}

// ConfigFor returns the display configuration for an event type. Types
// outside the table fall back to the raw type string as title and the
// info level, so mapping never drops an event on an unknown kind.
func ConfigFor(t EventType) TypeConfig {
	if cfg, ok := typeConfigs[t]; ok {
		return cfg
	}
	return TypeConfig{Title: string(t), Level: LevelInfo, Icon: "circle"}
}

// DisplayEvent is the canonical in-memory representation of one occurrence
// in a task's lifecycle, regardless of which wire format delivered it.
type DisplayEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Level       Level          `json:"level"`
	Data        map[string]any `json:"data,omitempty"`
	Icon        string         `json:"icon,omitempty"`
}

// TaskEventRecord is the wire shape of one historical event as returned by
// the backend's paged event listing.
type TaskEventRecord struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventPage is one page of historical events plus pagination metadata.
type EventPage struct {
	Events   []TaskEventRecord `json:"events"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int               `json:"total"`
	HasNext  bool              `json:"has_next"`
}
