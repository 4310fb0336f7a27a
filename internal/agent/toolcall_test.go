package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasspane/interface-orchestrator/internal/tools"
)

// stubTool returns a fixed result or error from Execute.
type stubTool struct {
	name   string
	result map[string]interface{}
	err    error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool" }
func (s *stubTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (s *stubTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return s.result, s.err
}

func TestCallTool_PassesThroughSuccessfulResults(t *testing.T) {
	tool := &stubTool{
		name:   "get_current_spec",
		result: map[string]interface{}{"spec_json": map[string]interface{}{"components": []interface{}{}}},
	}

	result, err := CallTool(context.Background(), tool, nil)
	require.NoError(t, err)
	assert.Equal(t, tool.result, result)
}

func TestCallTool_ErrorShapedResultBecomesExecutionError(t *testing.T) {
	tool := &stubTool{
		name: "apply_spec_edits",
		result: map[string]interface{}{
			"error":   true,
			"message": "spec rejected by validation",
			"validation_errors": []interface{}{
				"component w1: unknown type not-a-widget",
			},
		},
	}

	result, err := CallTool(context.Background(), tool, nil)
	assert.Nil(t, result)
	require.Error(t, err)

	var execErr *tools.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "apply_spec_edits", execErr.ToolName)
	assert.Contains(t, err.Error(), "spec rejected by validation")
	assert.Equal(t, []string{"component w1: unknown type not-a-widget"}, execErr.ValidationErrors)
}

func TestCallTool_ErrorShapedResultWithoutMessage(t *testing.T) {
	tool := &stubTool{
		name:   "outcome_lookup",
		result: map[string]interface{}{"error": true},
	}

	_, err := CallTool(context.Background(), tool, nil)
	require.Error(t, err)

	var execErr *tools.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "unspecified tool error", execErr.Message)
}

func TestCallTool_ErrorFalseIsNotAnError(t *testing.T) {
	tool := &stubTool{
		name:   "design_search",
		result: map[string]interface{}{"error": false, "results": []interface{}{}},
	}

	result, err := CallTool(context.Background(), tool, nil)
	require.NoError(t, err)
	assert.Equal(t, false, result["error"])
}

func TestCallTool_WrapsExecutionFailures(t *testing.T) {
	tool := &stubTool{name: "get_current_spec", err: errors.New("connection refused")}

	_, err := CallTool(context.Background(), tool, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_current_spec")
	assert.Contains(t, err.Error(), "connection refused")

	var execErr *tools.ExecutionError
	assert.False(t, errors.As(err, &execErr))
}

func TestCallToolByName(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&stubTool{
		name:   "navigate_phase",
		result: map[string]interface{}{"phase": "editing"},
	})

	result, err := CallToolByName(context.Background(), registry, "navigate_phase", nil)
	require.NoError(t, err)
	assert.Equal(t, "editing", result["phase"])

	_, err = CallToolByName(context.Background(), registry, "missing_tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
