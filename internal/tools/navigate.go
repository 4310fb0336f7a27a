package tools

import (
	"context"
	"fmt"

	"github.com/glasspane/interface-orchestrator/internal/thread"
)

// phaseOrder gives each phase a monotonic rank. The thread store is a pure
// keyed merge; this tool is the caller that enforces forward-only
// transitions, so a confused agent cannot roll a conversation backwards
// (resets go through the store's Reset instead).
var phaseOrder = map[thread.Phase]int{
	thread.PhasePlan:            0,
	thread.PhaseReadyForPreview: 1,
	thread.PhasePreviewing:      2,
	thread.PhasePreviewReady:    3,
	thread.PhaseEditing:         4,
	thread.PhaseDeployReady:     5,
}

// NavigatePhaseTool advances a conversation thread to a later phase.
type NavigatePhaseTool struct {
	threads thread.Store
}

// NewNavigatePhaseTool creates the navigate_phase tool.
func NewNavigatePhaseTool(threads thread.Store) *NavigatePhaseTool {
	return &NavigatePhaseTool{threads: threads}
}

func (t *NavigatePhaseTool) Name() string { return "navigate_phase" }

func (t *NavigatePhaseTool) Description() string {
	return "Advance the conversation to a later phase (plan, ready_for_preview, previewing, preview_ready, editing, deploy_ready)."
}

func (t *NavigatePhaseTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"thread_id": stringProp("Conversation thread identifier."),
		"phase":     stringProp("Target phase."),
	}, "thread_id", "phase")
}

func (t *NavigatePhaseTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	threadID, ok := input["thread_id"].(string)
	if !ok || threadID == "" {
		return ErrorResult("thread_id is required"), nil
	}

	rawPhase, _ := input["phase"].(string)
	target := thread.Phase(rawPhase)
	targetRank, known := phaseOrder[target]
	if !known {
		return ErrorResult(fmt.Sprintf("unknown phase %q", rawPhase)), nil
	}

	current, found, err := t.threads.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to read thread state: %w", err)
	}
	if found {
		if currentRank, ok := phaseOrder[current.Phase]; ok && targetRank < currentRank {
			return ErrorResult(fmt.Sprintf("cannot move phase backwards from %s to %s", current.Phase, target)), nil
		}
	}

	state, err := t.threads.Update(ctx, threadID, thread.Patch{Phase: &target})
	if err != nil {
		return nil, fmt.Errorf("failed to update thread state: %w", err)
	}

	return map[string]interface{}{
		"thread_id": state.ThreadID,
		"phase":     string(state.Phase),
		"mode":      string(state.Mode),
	}, nil
}
