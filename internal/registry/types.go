package registry

import (
	"context"
	"errors"
	"fmt"
)

// ErrToolNotFound is returned by Invoke for names with no registered tool.
var ErrToolNotFound = errors.New("tool not found")

// Handler is the callable behind a registered tool. Arguments arrive as
// the decoded JSON object the model produced; the return value is
// free-form (string, map, number, bool) and serialized as-is.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ParamSpec describes one declared tool parameter.
type ParamSpec struct {
	Type        string `json:"type" toml:"type"`
	Description string `json:"description" toml:"description"`
}

// Descriptor is the externally visible description of a tool. The
// implementing handler is kept out of it so descriptors can cross the
// wire as plain data.
type Descriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	Package     string               `json:"package"`
}

// ExecError wraps a failure inside a tool handler. It is always caught
// at the registry boundary and reported as data, never propagated as a
// crash.
type ExecError struct {
	Tool string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
