package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/clawinfra/toolclaw/internal/models"
	"github.com/clawinfra/toolclaw/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// scriptProvider replays one scripted delta sequence per ChatStream
// call.
type scriptProvider struct {
	mu     sync.Mutex
	passes [][]models.Delta
	errs   []error
	calls  int
	seen   []models.ChatRequest
}

func (p *scriptProvider) ChatStream(_ context.Context, req models.ChatRequest, emit func(models.Delta) error) error {
	p.mu.Lock()
	n := p.calls
	p.calls++
	p.seen = append(p.seen, req)
	p.mu.Unlock()

	if n < len(p.errs) && p.errs[n] != nil {
		return p.errs[n]
	}
	if n >= len(p.passes) {
		return fmt.Errorf("unexpected model pass %d", n)
	}
	for _, d := range p.passes[n] {
		if err := emit(d); err != nil {
			return err
		}
	}
	return nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	invoked []string
	results map[string]any
	errs    map[string]error
}

func (e *fakeExecutor) ExecuteTool(name string, params map[string]any) (any, error) {
	e.mu.Lock()
	e.invoked = append(e.invoked, name)
	e.mu.Unlock()
	if err := e.errs[name]; err != nil {
		return nil, err
	}
	if out, ok := e.results[name]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("tool %s not found", name)
}

func collect() (func(Event) error, *[]Event) {
	var events []Event
	return func(ev Event) error {
		events = append(events, ev)
		return nil
	}, &events
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func newTestOrchestrator(p models.StreamProvider, e ToolExecutor) (*Orchestrator, *session.Store) {
	store := session.NewStore(time.Hour, testLogger())
	return New(p, e, store, 0, testLogger()), store
}

func TestContentOnlyTurn(t *testing.T) {
	provider := &scriptProvider{passes: [][]models.Delta{{
		{Kind: models.DeltaContent, Text: "Hel"},
		{Kind: models.DeltaContent, Text: "lo"},
	}}}
	o, store := newTestOrchestrator(provider, &fakeExecutor{})

	sess, _ := store.GetOrCreate("")
	emit, events := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "hi", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	got := eventTypes(*events)
	want := []string{EventContent, EventContent, EventEnd}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events %v, want %v", got, want)
	}

	msgs := sess.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hello" {
		t.Errorf("unexpected assistant message: %+v", msgs[1])
	}
}

func TestFragmentedToolCallExecutedOnce(t *testing.T) {
	// One add(a=2,b=3) call split over three fragments.
	provider := &scriptProvider{passes: [][]models.Delta{
		{
			{Kind: models.DeltaToolCall, Index: 0, ID: "call_1", Name: "ad"},
			{Kind: models.DeltaToolCall, Index: 0, Name: "d", Arguments: `{"a": 2,`},
			{Kind: models.DeltaToolCall, Index: 0, Arguments: ` "b": 3}`},
		},
		{
			{Kind: models.DeltaContent, Text: "2+3=5"},
		},
	}}
	executor := &fakeExecutor{results: map[string]any{"add": 5.0}}
	o, store := newTestOrchestrator(provider, executor)

	sess, _ := store.GetOrCreate("")
	emit, events := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "what is 2+3", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	got := eventTypes(*events)
	want := []string{EventToolCalls, EventToolExecution, EventToolResult, EventContent, EventEnd}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events %v, want %v", got, want)
	}

	if len(executor.invoked) != 1 || executor.invoked[0] != "add" {
		t.Errorf("unexpected invocations: %v", executor.invoked)
	}

	exec := (*events)[1]
	if exec.ToolName != "add" || exec.ToolCallID != "call_1" {
		t.Errorf("unexpected execution event: %+v", exec)
	}
	if exec.Args["a"] != 2.0 || exec.Args["b"] != 3.0 {
		t.Errorf("arguments not reassembled: %+v", exec.Args)
	}
	if (*events)[2].Result != "5" {
		t.Errorf("unexpected result: %q", (*events)[2].Result)
	}

	msgs := sess.Messages()
	// user, assistant(tool_calls), tool, assistant(answer)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(msgs))
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].Function.Arguments != `{"a": 2, "b": 3}` {
		t.Errorf("unexpected assistant tool calls: %+v", msgs[1].ToolCalls)
	}
	if msgs[2].Role != "tool" || msgs[2].ToolCallID != "call_1" || msgs[2].Content != "5" {
		t.Errorf("unexpected tool message: %+v", msgs[2])
	}
}

func TestInterleavedFragmentsKeepIndexOrder(t *testing.T) {
	provider := &scriptProvider{passes: [][]models.Delta{
		{
			{Kind: models.DeltaToolCall, Index: 0, ID: "c0", Name: "first"},
			{Kind: models.DeltaToolCall, Index: 1, ID: "c1", Name: "second"},
			{Kind: models.DeltaToolCall, Index: 1, Arguments: `{}`},
			{Kind: models.DeltaToolCall, Index: 0, Arguments: `{}`},
		},
		{
			{Kind: models.DeltaContent, Text: "done"},
		},
	}}
	executor := &fakeExecutor{results: map[string]any{"first": "1", "second": "2"}}
	o, store := newTestOrchestrator(provider, executor)

	sess, _ := store.GetOrCreate("")
	emit, _ := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "go", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(executor.invoked) != "[first second]" {
		t.Errorf("expected index-order execution, got %v", executor.invoked)
	}
}

func TestProviderErrorEmitsSingleErrorEvent(t *testing.T) {
	provider := &scriptProvider{errs: []error{errors.New("upstream 500")}}
	o, store := newTestOrchestrator(provider, &fakeExecutor{})

	sess, _ := store.GetOrCreate("")
	emit, events := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "hi", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	got := eventTypes(*events)
	if fmt.Sprint(got) != fmt.Sprint([]string{EventError}) {
		t.Fatalf("events %v, want single error", got)
	}
	if (*events)[0].Error != "upstream 500" {
		t.Errorf("unexpected error text: %q", (*events)[0].Error)
	}

	// The user message written before the failure sticks around.
	if sess.Len() != 1 {
		t.Errorf("expected history preserved, got %d entries", sess.Len())
	}
}

func TestToolErrorSubstitutedAsResult(t *testing.T) {
	provider := &scriptProvider{passes: [][]models.Delta{
		{
			{Kind: models.DeltaToolCall, Index: 0, ID: "c1", Name: "boom", Arguments: `{}`},
		},
		{
			{Kind: models.DeltaContent, Text: "it failed"},
		},
	}}
	executor := &fakeExecutor{errs: map[string]error{"boom": errors.New("kaput")}}
	o, store := newTestOrchestrator(provider, executor)

	sess, _ := store.GetOrCreate("")
	emit, events := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "hi", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	var resultEv *Event
	for i := range *events {
		if (*events)[i].Type == EventToolResult {
			resultEv = &(*events)[i]
		}
	}
	if resultEv == nil {
		t.Fatal("no tool_result event")
	}
	if resultEv.Result != "Error: kaput" {
		t.Errorf("unexpected substituted result: %q", resultEv.Result)
	}

	// The second pass still ran: the loop continues after a tool error.
	if provider.calls != 2 {
		t.Errorf("expected 2 model passes, got %d", provider.calls)
	}
}

func TestMalformedArgumentsSubstituted(t *testing.T) {
	provider := &scriptProvider{passes: [][]models.Delta{
		{
			{Kind: models.DeltaToolCall, Index: 0, ID: "c1", Name: "add", Arguments: `{"a":`},
		},
		{
			{Kind: models.DeltaContent, Text: "sorry"},
		},
	}}
	executor := &fakeExecutor{results: map[string]any{"add": 5.0}}
	o, store := newTestOrchestrator(provider, executor)

	sess, _ := store.GetOrCreate("")
	emit, events := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "hi", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	if len(executor.invoked) != 0 {
		t.Errorf("executor must not run with unparseable args: %v", executor.invoked)
	}
	for _, ev := range *events {
		if ev.Type == EventToolResult && ev.Result == "" {
			t.Error("expected substituted error text in result")
		}
	}
}

func TestMaxTurnsCap(t *testing.T) {
	// Every pass requests another tool call.
	looping := make([][]models.Delta, DefaultMaxTurns)
	for i := range looping {
		looping[i] = []models.Delta{
			{Kind: models.DeltaToolCall, Index: 0, ID: fmt.Sprintf("c%d", i), Name: "ping", Arguments: `{}`},
		}
	}
	provider := &scriptProvider{passes: looping}
	executor := &fakeExecutor{results: map[string]any{"ping": "pong"}}
	o, store := newTestOrchestrator(provider, executor)

	sess, _ := store.GetOrCreate("")
	emit, events := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "hi", "", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	last := (*events)[len(*events)-1]
	if last.Type != EventError {
		t.Errorf("expected terminal error event, got %s", last.Type)
	}
	if provider.calls != DefaultMaxTurns {
		t.Errorf("expected %d passes, got %d", DefaultMaxTurns, provider.calls)
	}
}

func TestEmitErrorAbortsBeforeExecution(t *testing.T) {
	provider := &scriptProvider{passes: [][]models.Delta{
		{
			{Kind: models.DeltaToolCall, Index: 0, ID: "c1", Name: "add", Arguments: `{}`},
		},
	}}
	executor := &fakeExecutor{results: map[string]any{"add": 5.0}}
	o, store := newTestOrchestrator(provider, executor)

	gone := errors.New("client disconnected")
	sess, _ := store.GetOrCreate("")
	emit := func(ev Event) error {
		if ev.Type == EventToolExecution {
			return gone
		}
		return nil
	}
	err := o.StreamTurn(context.Background(), sess.ID, "hi", "", "m1", nil, emit)
	if !errors.Is(err, gone) {
		t.Fatalf("expected emit error returned, got %v", err)
	}
	if len(executor.invoked) != 0 {
		t.Errorf("tool must not execute after emit failure: %v", executor.invoked)
	}
}

func TestSystemPromptPrepended(t *testing.T) {
	provider := &scriptProvider{passes: [][]models.Delta{{
		{Kind: models.DeltaContent, Text: "ok"},
	}}}
	o, store := newTestOrchestrator(provider, &fakeExecutor{})

	sess, _ := store.GetOrCreate("")
	emit, _ := collect()
	if err := o.StreamTurn(context.Background(), sess.ID, "hi", "be terse", "m1", nil, emit); err != nil {
		t.Fatal(err)
	}

	req := provider.seen[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != "be terse" {
		t.Errorf("system prompt not prepended: %+v", req.Messages)
	}
	// The system prompt never lands in stored history.
	if sess.Messages()[0].Role != "user" {
		t.Errorf("history must start with the user message")
	}
}

// Fragments carrying corrupt indexes are dropped rather than panicking
// or pre-allocating an arbitrary number of placeholder calls.
func TestAccumulatorRejectsBadIndexes(t *testing.T) {
	var acc callAccumulator
	acc.add(models.Delta{Kind: models.DeltaToolCall, Index: -1, Name: "x"})
	acc.add(models.Delta{Kind: models.DeltaToolCall, Index: 1 << 30, Name: "y"})
	if !acc.empty() {
		t.Fatalf("bad indexes accumulated: %+v", acc.assembled())
	}

	acc.add(models.Delta{Kind: models.DeltaToolCall, Index: 2, Name: "z"})
	if got := len(acc.assembled()); got != 3 {
		t.Fatalf("expected 3 slots, got %d", got)
	}
	if acc.assembled()[2].Function.Name != "z" {
		t.Errorf("fragment not routed to its index: %+v", acc.assembled())
	}
}
