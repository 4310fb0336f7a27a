package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasspane/interface-orchestrator/internal/thread"
)

func TestNavigatePhaseTool_AdvancesPhase(t *testing.T) {
	threads := thread.NewMemoryStore()
	tool := NewNavigatePhaseTool(threads)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"thread_id": "t1",
		"phase":     "preview_ready",
	})
	require.NoError(t, err)

	assert.Equal(t, "preview_ready", result["phase"])

	state, found, err := threads.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, thread.PhasePreviewReady, state.Phase)
}

func TestNavigatePhaseTool_RejectsBackwardsTransition(t *testing.T) {
	threads := thread.NewMemoryStore()
	tool := NewNavigatePhaseTool(threads)
	ctx := context.Background()

	_, err := tool.Execute(ctx, map[string]interface{}{
		"thread_id": "t1", "phase": "editing",
	})
	require.NoError(t, err)

	result, err := tool.Execute(ctx, map[string]interface{}{
		"thread_id": "t1", "phase": "plan",
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["error"])

	// State is unchanged after the rejected transition.
	state, _, err := threads.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, thread.PhaseEditing, state.Phase)
}

func TestNavigatePhaseTool_SamePhaseIsAllowed(t *testing.T) {
	threads := thread.NewMemoryStore()
	tool := NewNavigatePhaseTool(threads)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := tool.Execute(ctx, map[string]interface{}{
			"thread_id": "t1", "phase": "previewing",
		})
		require.NoError(t, err)
		assert.Nil(t, result["error"])
	}
}

func TestNavigatePhaseTool_InputValidation(t *testing.T) {
	tool := NewNavigatePhaseTool(thread.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		input map[string]interface{}
	}{
		{"missing_thread", map[string]interface{}{"phase": "plan"}},
		{"unknown_phase", map[string]interface{}{"thread_id": "t1", "phase": "ascending"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Execute(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, true, result["error"])
		})
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewNavigatePhaseTool(thread.NewMemoryStore()))
	registry.Register(NewGetCurrentSpecTool(newFakeSpecStore()))

	_, ok := registry.Get("navigate_phase")
	assert.True(t, ok)
	_, ok = registry.Get("unknown")
	assert.False(t, ok)

	list := registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, "get_current_spec", list[0].Name())
	assert.Equal(t, "navigate_phase", list[1].Name())
}
