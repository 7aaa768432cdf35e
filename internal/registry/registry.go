package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// registeredTool pairs a descriptor with its resolved handler.
type registeredTool struct {
	Descriptor Descriptor
	Handler    Handler
}

// Registry maintains the loaded tool set. Load populates it from the
// pack directory; List and Invoke serve it read-mostly afterwards.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*registeredTool // tool name -> tool
	packsDir string
	catalog  map[string]Handler // handler key -> callable
	logger   *slog.Logger
}

// New creates a registry scanning packsDir and resolving handler keys
// against the given catalog.
func New(packsDir string, catalog map[string]Handler, logger *slog.Logger) *Registry {
	return &Registry{
		tools:    make(map[string]*registeredTool),
		packsDir: packsDir,
		catalog:  catalog,
		logger:   logger.With("component", "registry"),
	}
}

// Load scans the pack directory and (re)builds the tool set. A pack
// that fails to load is skipped with a warning; it never aborts the
// whole pass. Duplicate tool names across packs: last loaded wins.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Info("tools directory does not exist, skipping", "dir", r.packsDir)
			return nil
		}
		return fmt.Errorf("read tools dir: %w", err)
	}

	tools := make(map[string]*registeredTool)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		packDir := filepath.Join(r.packsDir, entry.Name())
		loaded, err := r.loadPack(packDir, entry.Name())
		if err != nil {
			r.logger.Warn("failed to load pack", "dir", packDir, "error", err)
			continue
		}
		for _, rt := range loaded {
			if prev, exists := tools[rt.Descriptor.Name]; exists {
				r.logger.Warn("duplicate tool name, last loaded wins",
					"tool", rt.Descriptor.Name,
					"previous", prev.Descriptor.Package,
					"replacement", rt.Descriptor.Package,
				)
			}
			tools[rt.Descriptor.Name] = rt
		}
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()

	r.logger.Info("tool packs loaded", "tools", len(tools))
	return nil
}

// loadPack loads a single pack directory.
func (r *Registry) loadPack(dir, dirName string) ([]*registeredTool, error) {
	manifest, err := parseManifest(filepath.Join(dir, "PACK.md"))
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	packName := manifest.Name
	if packName == "" {
		packName = dirName
	}

	decls, err := parseToolsTOML(filepath.Join(dir, "tools.toml"))
	if err != nil {
		return nil, err
	}

	var loaded []*registeredTool
	for _, decl := range decls {
		if decl.Name == "" {
			r.logger.Warn("tool declaration missing name, skipping", "pack", packName)
			continue
		}
		handler, ok := r.catalog[decl.Handler]
		if !ok {
			r.logger.Warn("unknown handler for tool, skipping",
				"pack", packName, "tool", decl.Name, "handler", decl.Handler)
			continue
		}
		params := decl.Params
		if params == nil {
			params = make(map[string]ParamSpec)
		}
		loaded = append(loaded, &registeredTool{
			Descriptor: Descriptor{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  params,
				Package:     packName,
			},
			Handler: handler,
		})
		r.logger.Info("loaded tool", "name", decl.Name, "pack", packName)
	}
	return loaded, nil
}

// List returns the current descriptor set.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.tools))
	for _, rt := range r.tools {
		result = append(result, rt.Descriptor)
	}
	return result
}

// Describe returns the descriptor of a single tool.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return rt.Descriptor, true
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke runs the named tool with the given arguments. An unknown name
// fails with ErrToolNotFound; failures inside the handler (including
// panics) are wrapped as *ExecError and never escape as crashes.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &ExecError{Tool: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if args == nil {
		args = make(map[string]any)
	}
	out, err := rt.Handler(ctx, args)
	if err != nil {
		return nil, &ExecError{Tool: name, Err: err}
	}
	return out, nil
}
