package orchestrator

import "github.com/clawinfra/toolclaw/internal/models"

// callAccumulator reassembles tool calls from streamed fragments.
// Providers split one call across many deltas keyed by index; id, name
// and arguments each arrive in pieces and are concatenated verbatim.
// The arguments string is not valid JSON until the stream ends, so it
// is never parsed here.
type callAccumulator struct {
	calls []models.ToolCall
}

// maxCallsPerPass bounds the accumulator's growth so a corrupt index
// in one delta cannot allocate an arbitrary number of placeholders.
const maxCallsPerPass = 64

func (a *callAccumulator) add(d models.Delta) {
	if d.Index < 0 || d.Index >= maxCallsPerPass {
		return
	}
	for len(a.calls) <= d.Index {
		a.calls = append(a.calls, models.ToolCall{Type: "function"})
	}
	c := &a.calls[d.Index]
	c.ID += d.ID
	c.Function.Name += d.Name
	c.Function.Arguments += d.Arguments
}

// assembled returns the completed calls in index order.
func (a *callAccumulator) assembled() []models.ToolCall {
	return a.calls
}

func (a *callAccumulator) empty() bool {
	return len(a.calls) == 0
}
