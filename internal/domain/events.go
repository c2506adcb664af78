package domain

import "encoding/json"

// EventType tags the variants of Event.
type EventType string

const (
	// EventTextDelta carries an incremental piece of assistant output.
	EventTextDelta EventType = "text_delta"

	// EventToolCall and EventToolResult carry the tool-call lifecycle.
	// Their payloads are opaque to the billing core.
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"

	// EventUsageReport carries a billing fact. It never reaches callers.
	EventUsageReport EventType = "usage_report"

	// EventAssistantFinal carries the complete assistant message on success.
	EventAssistantFinal EventType = "assistant_final"

	// EventError carries a terminal failure reason.
	EventError EventType = "error"

	// EventDone is the last event of every run.
	EventDone EventType = "done"
)

// Event is a tagged variant flowing from a provider through the relay to the
// caller. Exactly one of assistant_final (success) or error (failure) precedes
// the terminal done; usage_report may appear any number of times and carries
// no UI meaning.
type Event struct {
	Type    EventType  `json:"type"`
	Delta   string     `json:"delta,omitempty"`
	Content string     `json:"content,omitempty"`
	Error   string     `json:"error,omitempty"`
	Tool    *ToolEvent `json:"tool,omitempty"`
	Usage   *UsageFact `json:"-"`
}

// ToolEvent carries one step of the tool-call lifecycle.
type ToolEvent struct {
	CallID  string          `json:"call_id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsTerminal reports whether the event shape belongs to terminal synthesis.
// The relay owns terminal events; provider-emitted ones are never forwarded.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventAssistantFinal, EventError, EventDone:
		return true
	default:
		return false
	}
}
