package orchestrator

import "github.com/clawinfra/toolclaw/internal/models"

// Event types streamed to chat clients.
const (
	EventContent       = "content"
	EventToolCalls     = "tool_calls"
	EventToolExecution = "tool_execution"
	EventToolResult    = "tool_result"
	EventEnd           = "end"
	EventError         = "error"
)

// Event is one item of the chat event stream. Only the fields for the
// given type are populated.
type Event struct {
	Type       string            `json:"type"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Args       map[string]any    `json:"args,omitempty"`
	Result     string            `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func contentEvent(text string) Event {
	return Event{Type: EventContent, Content: text}
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Error: msg}
}
