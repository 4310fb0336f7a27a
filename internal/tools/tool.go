package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is one callable capability the builder agent composes. Execute
// returns a result object; recoverable domain failures are reported as an
// error-shaped result (see ErrorResult) rather than a Go error, mirroring
// the contract the agent sees. Infrastructure failures (datastore down,
// context cancelled) are Go errors.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON-schema object describing the tool's
	// input, as handed to the model.
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// ErrorResult builds an error-shaped tool result: {error: true, message,
// validation_errors?}. The agent execution wrapper converts results of
// this shape into a propagated *ExecutionError, so downstream code can
// assume a successful tool call never returns one.
func ErrorResult(message string, validationErrors ...string) map[string]interface{} {
	result := map[string]interface{}{
		"error":   true,
		"message": message,
	}
	if len(validationErrors) > 0 {
		list := make([]interface{}, len(validationErrors))
		for i, v := range validationErrors {
			list[i] = v
		}
		result["validation_errors"] = list
	}
	return result
}

// ExecutionError is the hard failure produced when a tool returns an
// error-shaped result.
type ExecutionError struct {
	ToolName         string
	Message          string
	ValidationErrors []string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed validation: %s", e.ToolName, e.Message)
}

// Registry holds the tools available to a conversation turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous registration of the same
// name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// objectSchema is a small helper for building tool input schemas.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		list := make([]interface{}, len(required))
		for i, r := range required {
			list[i] = r
		}
		schema["required"] = list
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}
