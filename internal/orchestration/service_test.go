package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasspane/interface-orchestrator/internal/agent"
	"github.com/glasspane/interface-orchestrator/internal/metrics"
	"github.com/glasspane/interface-orchestrator/internal/thread"
	"github.com/glasspane/interface-orchestrator/internal/tools"
	"github.com/glasspane/interface-orchestrator/internal/uispec"
)

// cannedBuilder plays back a fixed turn result.
type cannedBuilder struct {
	result *agent.RawResult
	err    error
}

func (b *cannedBuilder) Name() string { return "canned" }

func (b *cannedBuilder) Generate(ctx context.Context, req agent.GenerateRequest) (*agent.RawResult, error) {
	return b.result, b.err
}

func newTestService(t *testing.T, builder agent.Agent) *Service {
	t.Helper()
	turnMetrics, err := metrics.NewTurnMetrics()
	require.NoError(t, err)

	return &Service{
		Threads:     thread.NewMemoryStore(),
		Gate:        uispec.NewGate(false),
		Builder:     builder,
		TurnMetrics: turnMetrics,
	}
}

func TestService_RunTurn(t *testing.T) {
	builder := &cannedBuilder{result: &agent.RawResult{
		Text:  "  Dashboard drafted.  ",
		Steps: []agent.Step{{Tool: "design_search"}},
	}}
	svc := newTestService(t, builder)

	result, err := svc.RunTurn(context.Background(), "t1", "if-1", "make me a dashboard", nil)
	require.NoError(t, err)

	assert.Equal(t, "Dashboard drafted.", result.Text)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, thread.PhasePlan, result.Phase)

	// Plan phase expects navigate_phase; the builder never called it.
	assert.False(t, result.SelectionComplete)
}

func TestService_RunTurn_ReportsPostTurnPhase(t *testing.T) {
	svc := newTestService(t, nil)

	// Simulate a navigate_phase tool invocation by routing the builder
	// through the same thread store the service reads.
	navigator := tools.NewNavigatePhaseTool(svc.Threads)
	svc.Builder = &navigatingBuilder{navigator: navigator}

	result, err := svc.RunTurn(context.Background(), "t1", "if-1", "move on", nil)
	require.NoError(t, err)

	assert.Equal(t, thread.PhaseReadyForPreview, result.Phase)
	assert.True(t, result.SelectionComplete)
}

// navigatingBuilder invokes the navigate_phase tool mid-turn.
type navigatingBuilder struct {
	navigator tools.Tool
}

func (b *navigatingBuilder) Name() string { return "navigating" }

func (b *navigatingBuilder) Generate(ctx context.Context, req agent.GenerateRequest) (*agent.RawResult, error) {
	input := map[string]interface{}{
		"thread_id": req.ThreadID,
		"phase":     "ready_for_preview",
	}
	output, err := agent.CallTool(ctx, b.navigator, input)
	if err != nil {
		return nil, err
	}
	return &agent.RawResult{
		Text:  "moving to preview",
		Steps: []agent.Step{{Tool: "navigate_phase", Input: input, Output: output}},
	}, nil
}

func TestService_RunTurn_PropagatesBuilderErrors(t *testing.T) {
	svc := newTestService(t, &cannedBuilder{err: errors.New("model overloaded")})

	_, err := svc.RunTurn(context.Background(), "t1", "if-1", "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestService_ValidateSpec(t *testing.T) {
	svc := newTestService(t, nil)

	result := svc.ValidateSpec(context.Background(), map[string]interface{}{
		"components": []interface{}{
			map[string]interface{}{"id": "w1", "type": "kpi"},
			map[string]interface{}{"id": "w2", "type": "hologram"},
		},
	})

	require.NotNil(t, result.Spec)
	require.Len(t, result.Spec.Components, 1)
	assert.Equal(t, uispec.TypeStatCard, result.Spec.Components[0].Type)
	require.Len(t, result.DroppedComponents, 1)
	assert.Equal(t, uispec.DropReasonUnknownType, result.DroppedComponents[0].Reason)
}

func TestClassifyTurnError(t *testing.T) {
	execErr := &tools.ExecutionError{ToolName: "apply_spec_edits", Message: "bad spec"}

	assert.Equal(t, "tool_validation_error", classifyTurnError(execErr))
	assert.Equal(t, "agent_error", classifyTurnError(errors.New("boom")))
}
