package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/clawinfra/toolclaw/internal/models"
	"github.com/clawinfra/toolclaw/internal/registry"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.respondJSON(w, map[string]any{
		"models":        s.cfg.LLM.Models,
		"default_model": s.cfg.LLM.DefaultModel,
		"ui": map[string]any{
			"title":       s.cfg.UI.Title,
			"theme":       s.cfg.UI.Theme,
			"auto_scroll": s.cfg.UI.AutoScroll,
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tools := s.currentTools()
	s.mu.Lock()
	degraded := s.degraded
	selected := s.selectedCount(tools)
	s.mu.Unlock()

	s.respondJSON(w, map[string]any{
		"registry_connected": !degraded,
		"tool_count":         len(tools),
		"selected_count":     selected,
		"sessions":           s.sessions.Len(),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tools := s.currentTools()

	s.mu.Lock()
	type toolView struct {
		registry.Descriptor
		Selected bool `json:"selected"`
	}
	views := make([]toolView, len(tools))
	for i, d := range tools {
		views[i] = toolView{Descriptor: d, Selected: s.isSelectedLocked(d.Name)}
	}
	s.mu.Unlock()

	s.respondJSON(w, map[string]any{
		"tools": views,
		"count": len(views),
	})
}

func (s *Server) handleToolsSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Tools []string `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	s.mu.Lock()
	s.selected = make(map[string]bool, len(body.Tools))
	for _, name := range body.Tools {
		s.selected[name] = true
	}
	count := len(s.selected)
	s.mu.Unlock()

	s.logger.Info("tool selection updated", "selected", count)
	s.respondJSON(w, map[string]any{"selected": body.Tools})
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ToolName   string         `json:"tool_name"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if body.ToolName == "" {
		s.respondError(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	out, err := s.tools.ExecuteTool(body.ToolName, body.Parameters)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "execute %s: %v", body.ToolName, err)
		return
	}
	s.respondJSON(w, map[string]any{"output": out})
}

// currentTools re-fetches the tool list from the registry, falling
// back to the last good copy when the registry is unreachable.
func (s *Server) currentTools() []registry.Descriptor {
	tools, err := s.tools.ListTools()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !s.degraded {
			s.logger.Warn("registry unreachable, serving cached tools", "error", err)
		}
		s.degraded = true
		return s.cached
	}
	s.degraded = false
	s.cached = tools
	return tools
}

func (s *Server) isSelectedLocked(name string) bool {
	if s.selected == nil {
		return true
	}
	return s.selected[name]
}

func (s *Server) selectedCount(tools []registry.Descriptor) int {
	var n int
	for _, d := range tools {
		if s.isSelectedLocked(d.Name) {
			n++
		}
	}
	return n
}

// selectedSchemas converts the selected descriptors into
// function-calling schemas for the model.
func (s *Server) selectedSchemas() []models.ToolSchema {
	tools := s.currentTools()

	s.mu.Lock()
	defer s.mu.Unlock()
	var schemas []models.ToolSchema
	for _, d := range tools {
		if !s.isSelectedLocked(d.Name) {
			continue
		}
		schemas = append(schemas, toolSchema(d))
	}
	return schemas
}

const baseSystemPrompt = "You are a helpful assistant that can use tools to complete tasks."

// buildSystemPrompt composes the system message for a chat turn: the
// default prompt enumerates the currently selected tools, and a
// caller-supplied prompt goes in front of it.
func (s *Server) buildSystemPrompt(custom string) string {
	tools := s.currentTools()

	s.mu.Lock()
	var lines []string
	for _, d := range tools {
		if !s.isSelectedLocked(d.Name) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (from %s): %s", d.Name, d.Package, d.Description))
	}
	s.mu.Unlock()

	prompt := baseSystemPrompt
	if len(lines) > 0 {
		prompt += "\n\nAvailable tools:\n" + strings.Join(lines, "\n") +
			"\n\nInvoke a tool through function calling whenever it helps answer the request."
	}
	if custom != "" {
		prompt = custom + "\n\n" + prompt
	}
	return prompt
}

func toolSchema(d registry.Descriptor) models.ToolSchema {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for name, p := range d.Parameters {
		properties[name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		required = append(required, name)
	}
	sort.Strings(required)

	return models.ToolSchema{
		Type: "function",
		Function: models.FunctionSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}
