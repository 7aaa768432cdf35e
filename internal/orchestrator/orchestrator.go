// Package orchestrator runs the tool-calling loop: it streams model
// output, reassembles fragmented tool calls, executes them against the
// registry and feeds results back to the model until the model answers
// without requesting tools.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clawinfra/toolclaw/internal/models"
	"github.com/clawinfra/toolclaw/internal/session"
)

// DefaultMaxTurns caps how many model round trips one user message may
// trigger before the loop is treated as runaway.
const DefaultMaxTurns = 10

// ToolExecutor invokes a named tool. The RPC client satisfies this.
type ToolExecutor interface {
	ExecuteTool(name string, params map[string]any) (any, error)
}

// Orchestrator drives chat turns for all sessions.
type Orchestrator struct {
	provider models.StreamProvider
	executor ToolExecutor
	sessions *session.Store
	maxTurns int
	logger   *slog.Logger
}

// New creates an orchestrator. maxTurns <= 0 selects DefaultMaxTurns.
func New(provider models.StreamProvider, executor ToolExecutor, sessions *session.Store, maxTurns int, logger *slog.Logger) *Orchestrator {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Orchestrator{
		provider: provider,
		executor: executor,
		sessions: sessions,
		maxTurns: maxTurns,
		logger:   logger.With("component", "orchestrator"),
	}
}

// StreamTurn processes one user message for the given session,
// invoking emit for every stream event. It holds the session's turn
// lock for the whole call, so concurrent turns on one session are
// serialized. An error returned by emit aborts the turn; history
// written up to that point is kept.
func (o *Orchestrator) StreamTurn(ctx context.Context, sessionID, userMessage, systemPrompt, model string, tools []models.ToolSchema, emit func(Event) error) error {
	sess, _ := o.sessions.GetOrCreate(sessionID)
	sess.LockTurn()
	defer sess.UnlockTurn()

	sess.Append(models.ChatMessage{Role: "user", Content: userMessage})

	for turn := 0; turn < o.maxTurns; turn++ {
		done, err := o.runModelPass(ctx, sess, systemPrompt, model, tools, emit)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	o.logger.Warn("tool loop cap reached", "session_id", sess.ID, "max_turns", o.maxTurns)
	return emit(errorEvent(fmt.Sprintf("tool loop exceeded %d turns", o.maxTurns)))
}

// runModelPass streams one model response and, when the model requested
// tools, executes them and appends the results. It reports done=true
// when the model answered without tool calls.
func (o *Orchestrator) runModelPass(ctx context.Context, sess *session.Session, systemPrompt, model string, tools []models.ToolSchema, emit func(Event) error) (bool, error) {
	req := models.ChatRequest{
		Model:    model,
		Messages: buildMessages(systemPrompt, sess.Messages()),
		Tools:    tools,
	}

	var (
		acc     callAccumulator
		answer  strings.Builder
		emitErr error
	)
	streamErr := o.provider.ChatStream(ctx, req, func(d models.Delta) error {
		switch d.Kind {
		case models.DeltaReasoning:
			if err := emit(contentEvent(d.Text)); err != nil {
				emitErr = err
				return err
			}
		case models.DeltaContent:
			answer.WriteString(d.Text)
			if err := emit(contentEvent(d.Text)); err != nil {
				emitErr = err
				return err
			}
		case models.DeltaToolCall:
			acc.add(d)
		case models.DeltaUsage:
			if d.Usage != nil {
				o.logger.Debug("usage", "session_id", sess.ID,
					"prompt_tokens", d.Usage.PromptTokens,
					"completion_tokens", d.Usage.CompletionTokens)
			}
		}
		return nil
	})
	if streamErr != nil {
		if emitErr != nil {
			// The client is gone; nobody is listening for an error
			// event.
			return false, emitErr
		}
		o.logger.Error("model stream failed", "session_id", sess.ID, "error", streamErr)
		if err := emit(errorEvent(streamErr.Error())); err != nil {
			return false, err
		}
		return true, nil
	}

	if acc.empty() {
		sess.Append(models.ChatMessage{Role: "assistant", Content: answer.String()})
		if err := emit(Event{Type: EventEnd}); err != nil {
			return false, err
		}
		return true, nil
	}

	calls := acc.assembled()
	if err := emit(Event{Type: EventToolCalls, ToolCalls: calls}); err != nil {
		return false, err
	}
	sess.Append(models.ChatMessage{
		Role:      "assistant",
		Content:   answer.String(),
		ToolCalls: calls,
	})

	for _, call := range calls {
		result, err := o.executeCall(sess, call, emit)
		if err != nil {
			return false, err
		}
		sess.Append(models.ChatMessage{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
	}
	return false, nil
}

// executeCall runs one tool call and returns its result text. Tool
// failures become result text so the model can see and correct them;
// only an emit failure is returned as an error.
func (o *Orchestrator) executeCall(sess *session.Session, call models.ToolCall, emit func(Event) error) (string, error) {
	args, parseErr := parseArguments(call.Function.Arguments)

	if err := emit(Event{
		Type:       EventToolExecution,
		ToolName:   call.Function.Name,
		ToolCallID: call.ID,
		Args:       args,
	}); err != nil {
		return "", err
	}

	var result string
	switch {
	case parseErr != nil:
		result = fmt.Sprintf("Error: invalid tool arguments: %v", parseErr)
	default:
		out, err := o.executor.ExecuteTool(call.Function.Name, args)
		if err != nil {
			o.logger.Warn("tool execution failed", "session_id", sess.ID,
				"tool", call.Function.Name, "error", err)
			result = fmt.Sprintf("Error: %v", err)
		} else {
			result = stringifyResult(out)
		}
	}

	if err := emit(Event{
		Type:       EventToolResult,
		ToolName:   call.Function.Name,
		ToolCallID: call.ID,
		Result:     result,
	}); err != nil {
		return "", err
	}
	return result, nil
}

func buildMessages(systemPrompt string, history []models.ChatMessage) []models.ChatMessage {
	if systemPrompt == "" {
		return history
	}
	msgs := make([]models.ChatMessage, 0, len(history)+1)
	msgs = append(msgs, models.ChatMessage{Role: "system", Content: systemPrompt})
	return append(msgs, history...)
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// stringifyResult renders a tool's free-form output for the model.
func stringifyResult(out any) string {
	switch v := out.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
