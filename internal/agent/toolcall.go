package agent

import (
	"context"
	"fmt"

	"github.com/glasspane/interface-orchestrator/internal/tools"
)

// CallTool executes a tool and enforces the tool-output validation
// contract: a result shaped like {error: true, message: ...} is converted
// into a propagated *tools.ExecutionError carrying any structured
// validation detail. Downstream code can therefore assume a successful
// call never returns an error-shaped object.
func CallTool(ctx context.Context, tool tools.Tool, input map[string]interface{}) (map[string]interface{}, error) {
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("tool %s execution failed: %w", tool.Name(), err)
	}

	if isError, ok := result["error"].(bool); ok && isError {
		execErr := &tools.ExecutionError{
			ToolName: tool.Name(),
			Message:  "unspecified tool error",
		}
		if message, ok := result["message"].(string); ok && message != "" {
			execErr.Message = message
		}
		if rawList, ok := result["validation_errors"].([]interface{}); ok {
			for _, raw := range rawList {
				if s, ok := raw.(string); ok {
					execErr.ValidationErrors = append(execErr.ValidationErrors, s)
				}
			}
		}
		return nil, execErr
	}

	return result, nil
}

// CallToolByName resolves a tool from the registry before calling it.
func CallToolByName(ctx context.Context, registry *tools.Registry, name string, input map[string]interface{}) (map[string]interface{}, error) {
	tool, ok := registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool %s is not registered", name)
	}
	return CallTool(ctx, tool, input)
}
