// Package models holds the chat wire types shared by the session
// store, the orchestrator and the provider clients, plus the streaming
// client for OpenAI-compatible endpoints.
package models

import "context"

// ChatMessage is one entry of a conversation history in the
// OpenAI-compatible shape. ToolCalls is set on assistant messages that
// request tools; ToolCallID links a tool-role message back to the call
// it answers.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a fully assembled tool invocation request from the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments as a raw JSON
// object string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes one tool to the model, function-calling style.
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema is the function block of a tool schema.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is one model turn: the full history so far plus the tool
// schemas the model may call.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Tools    []ToolSchema
}

// Delta kinds emitted while a model response streams in.
const (
	DeltaReasoning = "reasoning"
	DeltaContent   = "content"
	DeltaToolCall  = "tool_call"
	DeltaUsage     = "usage"
)

// Delta is one increment of a streaming model response. For tool-call
// deltas, Index identifies which call the fragment belongs to; ID,
// Name and Arguments each carry only the newly arrived piece and any of
// them may be empty.
type Delta struct {
	Kind      string
	Text      string
	Index     int
	ID        string
	Name      string
	Arguments string
	Usage     *Usage
}

// Usage is the token accounting a provider reports at stream end.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamProvider streams one model response, invoking emit for each
// delta in arrival order. A non-nil error from emit aborts the stream
// and is returned unchanged.
type StreamProvider interface {
	ChatStream(ctx context.Context, req ChatRequest, emit func(Delta) error) error
}
