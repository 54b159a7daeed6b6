package agent

// EventType discriminates streamed agent events.
type EventType string

const (
	// EventToolCall reports tool execution progress.
	EventToolCall EventType = "tool_call"

	// EventText carries a chunk of the final answer.
	EventText EventType = "text"

	// EventDone marks the end of a successful turn.
	EventDone EventType = "done"

	// EventError reports a failed turn. No further events follow.
	EventError EventType = "error"
)

// ToolStatus is the lifecycle of one tool call.
type ToolStatus string

const (
	StatusCalling  ToolStatus = "calling"
	StatusComplete ToolStatus = "complete"
	StatusError    ToolStatus = "error"
)

// Event is one streamed item from a turn. Which fields are set depends on
// Type: tool_call events carry Tool, Args, Status, and possibly Error; text
// events carry Text; error events carry Error.
type Event struct {
	Type   EventType      `json:"type"`
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Status ToolStatus     `json:"status,omitempty"`
	Text   string         `json:"text,omitempty"`
	Error  string         `json:"error,omitempty"`
}
