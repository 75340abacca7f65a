package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireNames maps stream event names to canonical types. The stream sends
// snake_case names matching the canonical values, but older emitters use
// dotted names, so both spellings are accepted.
var wireNames = map[string]EventType{}

func init() {
	for _, t := range KnownTypes() {
		wireNames[string(t)] = t
	}
	// Dotted aliases used by pre-v1 stream emitters.
	wireNames["workflow.started"] = EventWorkflowStarted
	wireNames["workflow.completed"] = EventWorkflowCompleted
	wireNames["workflow.failed"] = EventWorkflowFailed
	wireNames["workflow.cancelled"] = EventWorkflowCancelled
}

// MapHistoricalEvent converts one backend event record into a DisplayEvent.
// Unknown event types degrade to the raw type string as title with the info
// level; an unparsable timestamp degrades to the mapping time. This function
// never fails.
func MapHistoricalEvent(rec TaskEventRecord) DisplayEvent {
	t := EventType(rec.EventType)
	cfg := ConfigFor(t)

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	desc := rec.Message
	if desc == "" {
		desc = fmt.Sprintf("%s event occurred", cfg.Title)
	}

	return DisplayEvent{
		ID:          rec.ID,
		Type:        t,
		Timestamp:   ts,
		Title:       cfg.Title,
		Description: desc,
		Level:       cfg.Level,
		Data:        rec.Metadata,
		Icon:        cfg.Icon,
	}
}

// StreamEnvelope is one message received from the live event stream: an
// event name plus a data payload that may be a JSON object or an opaque
// string, depending on the emitter.
type StreamEnvelope struct {
	EventName string
	Payload   string
}

// MapStreamEvent converts one live stream envelope into a DisplayEvent for
// the given task. The canonical type is resolved from the event name first,
// then from an event_type field inside the payload, then defaults to the
// unknown arm. Malformed payloads never fail: an unparsable payload becomes
// the event description verbatim. A payload without a timestamp is stamped
// with the receipt time, and a missing id is synthesized from the task id,
// type and receipt time.
func MapStreamEvent(taskID string, env StreamEnvelope) DisplayEvent {
	payload := parsePayload(env.Payload)

	t, ok := wireNames[env.EventName]
	if !ok {
		if raw, has := payload["event_type"].(string); has {
			t = EventType(raw)
		} else {
			t = EventUnknown
		}
	}
	cfg := ConfigFor(t)

	now := time.Now()
	ts := now
	if raw, has := payload["timestamp"].(string); has {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			ts = parsed
		}
	}

	id, _ := payload["id"].(string)
	if id == "" {
		id = fmt.Sprintf("%s-%s-%d", taskID, t, now.UnixMilli())
	}

	desc, _ := payload["message"].(string)
	if desc == "" {
		desc = fmt.Sprintf("%s event occurred", cfg.Title)
	}

	return DisplayEvent{
		ID:          id,
		Type:        t,
		Timestamp:   ts,
		Title:       cfg.Title,
		Description: desc,
		Level:       cfg.Level,
		Data:        payload,
		Icon:        cfg.Icon,
	}
}

// parsePayload decodes a stream payload with a fail-open fallback: anything
// that is not a JSON object is wrapped as {"message": raw} so the original
// text survives into the event description.
func parsePayload(raw string) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload == nil {
		return map[string]any{"message": raw}
	}
	return payload
}
