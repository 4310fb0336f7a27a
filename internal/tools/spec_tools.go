package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glasspane/interface-orchestrator/internal/editbatch"
	"github.com/glasspane/interface-orchestrator/internal/uispec"
)

// ErrInterfaceNotFound is returned by SpecStore implementations when an
// interface has no versions yet.
var ErrInterfaceNotFound = errors.New("interface not found")

// SpecStore is the persistence collaborator for interface versions. The
// version history is append-only: SaveVersion always creates a new record
// and never mutates an existing one.
type SpecStore interface {
	CurrentSpec(ctx context.Context, interfaceID string) (specJSON, designTokens map[string]interface{}, versionID string, err error)
	SaveVersion(ctx context.Context, interfaceID string, spec *uispec.Specification) (versionID string, versionNumber int, err error)
}

// GetCurrentSpecTool returns the latest persisted spec for an interface.
type GetCurrentSpecTool struct {
	store SpecStore
}

// NewGetCurrentSpecTool creates the get_current_spec tool.
func NewGetCurrentSpecTool(store SpecStore) *GetCurrentSpecTool {
	return &GetCurrentSpecTool{store: store}
}

func (t *GetCurrentSpecTool) Name() string { return "get_current_spec" }

func (t *GetCurrentSpecTool) Description() string {
	return "Fetch the latest dashboard specification and design tokens for an interface."
}

func (t *GetCurrentSpecTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"interface_id": stringProp("Identifier of the interface to read."),
	}, "interface_id")
}

func (t *GetCurrentSpecTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	interfaceID, ok := input["interface_id"].(string)
	if !ok || interfaceID == "" {
		return ErrorResult("interface_id is required"), nil
	}

	specJSON, designTokens, versionID, err := t.store.CurrentSpec(ctx, interfaceID)
	if err != nil {
		if errors.Is(err, ErrInterfaceNotFound) {
			return ErrorResult(fmt.Sprintf("interface %s has no versions", interfaceID)), nil
		}
		return nil, fmt.Errorf("failed to load current spec: %w", err)
	}

	return map[string]interface{}{
		"spec_json":     specJSON,
		"design_tokens": designTokens,
		"version_id":    versionID,
	}, nil
}

// ApplySpecEditsTool applies a batch of edit actions (or a full
// replacement spec) to the latest version, runs the strict generation-time
// gate, and persists the result as a new version. A spec that fails the
// strict gate is never saved.
type ApplySpecEditsTool struct {
	store SpecStore
	gate  *uispec.Gate
}

// NewApplySpecEditsTool creates the apply_spec_edits tool.
func NewApplySpecEditsTool(store SpecStore, gate *uispec.Gate) *ApplySpecEditsTool {
	return &ApplySpecEditsTool{store: store, gate: gate}
}

func (t *ApplySpecEditsTool) Name() string { return "apply_spec_edits" }

func (t *ApplySpecEditsTool) Description() string {
	return "Apply edit actions or a replacement spec to an interface and persist a new immutable version."
}

func (t *ApplySpecEditsTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"interface_id": stringProp("Identifier of the interface to edit."),
		"actions": map[string]interface{}{
			"type":        "array",
			"description": "Edit actions to apply to the current spec.",
			"items":       map[string]interface{}{"type": "object"},
		},
		"spec": map[string]interface{}{
			"type":        "object",
			"description": "Full replacement spec; used instead of actions when present.",
		},
	}, "interface_id")
}

func (t *ApplySpecEditsTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	interfaceID, ok := input["interface_id"].(string)
	if !ok || interfaceID == "" {
		return ErrorResult("interface_id is required"), nil
	}

	var candidate interface{}
	warnings := []string{}

	if replacement, ok := input["spec"].(map[string]interface{}); ok {
		candidate = replacement
	} else {
		actions, err := decodeActions(input["actions"])
		if err != nil {
			return ErrorResult(err.Error()), nil
		}
		if len(actions) == 0 {
			return ErrorResult("either spec or a non-empty actions list is required"), nil
		}

		specJSON, designTokens, _, err := t.store.CurrentSpec(ctx, interfaceID)
		if err != nil {
			if errors.Is(err, ErrInterfaceNotFound) {
				return ErrorResult(fmt.Sprintf("interface %s has no versions to edit", interfaceID)), nil
			}
			return nil, fmt.Errorf("failed to load current spec: %w", err)
		}
		if _, ok := specJSON["design_tokens"]; !ok && designTokens != nil {
			specJSON["design_tokens"] = designTokens
		}

		current, err := uispec.Normalize(specJSON)
		if err != nil {
			return nil, fmt.Errorf("persisted spec is corrupt: %w", err)
		}

		edited, editWarnings := uispec.ApplyEdits(current, actions)
		warnings = append(warnings, editWarnings...)
		candidate = edited
	}

	spec, err := t.gate.ValidateStrict(candidate)
	if err != nil {
		return ErrorResult("spec rejected by validation", err.Error()), nil
	}

	versionID, versionNumber, err := t.store.SaveVersion(ctx, interfaceID, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to save interface version: %w", err)
	}

	specJSON, err := SpecToMap(spec)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"spec_json":      specJSON,
		"version_id":     versionID,
		"version_number": versionNumber,
		"warnings":       warnings,
	}, nil
}

// decodeActions converts the raw action list into typed edit actions via a
// JSON round trip.
func decodeActions(raw interface{}) ([]editbatch.Action, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New("actions must be an array")
	}

	encoded, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("actions are not encodable: %w", err)
	}

	var actions []editbatch.Action
	if err := json.Unmarshal(encoded, &actions); err != nil {
		return nil, fmt.Errorf("actions are malformed: %w", err)
	}
	return actions, nil
}

// SpecToMap converts a typed specification to its JSON object form.
func SpecToMap(spec *uispec.Specification) (map[string]interface{}, error) {
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spec: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("failed to decode spec: %w", err)
	}
	return out, nil
}
