package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasspane/interface-orchestrator/internal/uispec"
)

// fakeSpecStore is an in-memory SpecStore for tool tests.
type fakeSpecStore struct {
	specs    map[string]map[string]interface{}
	versions int
	saveErr  error
}

func newFakeSpecStore() *fakeSpecStore {
	return &fakeSpecStore{specs: make(map[string]map[string]interface{})}
}

func (s *fakeSpecStore) CurrentSpec(ctx context.Context, interfaceID string) (map[string]interface{}, map[string]interface{}, string, error) {
	spec, ok := s.specs[interfaceID]
	if !ok {
		return nil, nil, "", ErrInterfaceNotFound
	}
	tokens, _ := spec["design_tokens"].(map[string]interface{})
	return spec, tokens, fmt.Sprintf("ver-%d", s.versions), nil
}

func (s *fakeSpecStore) SaveVersion(ctx context.Context, interfaceID string, spec *uispec.Specification) (string, int, error) {
	if s.saveErr != nil {
		return "", 0, s.saveErr
	}
	encoded, err := SpecToMap(spec)
	if err != nil {
		return "", 0, err
	}
	s.specs[interfaceID] = encoded
	s.versions++
	return fmt.Sprintf("ver-%d", s.versions), s.versions, nil
}

func seedSpec(t *testing.T, store *fakeSpecStore, interfaceID string) {
	t.Helper()
	_, _, err := store.SaveVersion(context.Background(), interfaceID, &uispec.Specification{
		Components: []uispec.Component{
			{ID: "w1", Type: uispec.TypeStatCard, Props: map[string]interface{}{"title": "Runs"}},
			{ID: "w2", Type: uispec.TypeLineChart, Props: map[string]interface{}{"metric": "executions"}},
		},
		DesignTokens: map[string]interface{}{"primary": "#111"},
	})
	require.NoError(t, err)
}

func TestGetCurrentSpecTool(t *testing.T) {
	store := newFakeSpecStore()
	seedSpec(t, store, "if-1")
	tool := NewGetCurrentSpecTool(store)

	t.Run("returns_latest_spec", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"interface_id": "if-1",
		})
		require.NoError(t, err)

		assert.NotNil(t, result["spec_json"])
		assert.Equal(t, map[string]interface{}{"primary": "#111"}, result["design_tokens"])
		assert.Equal(t, "ver-1", result["version_id"])
	})

	t.Run("unknown_interface_is_error_shaped", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"interface_id": "nope",
		})
		require.NoError(t, err)
		assert.Equal(t, true, result["error"])
	})

	t.Run("missing_input_is_error_shaped", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]interface{}{})
		require.NoError(t, err)
		assert.Equal(t, true, result["error"])
	})
}

func TestApplySpecEditsTool_Actions(t *testing.T) {
	store := newFakeSpecStore()
	seedSpec(t, store, "if-1")
	tool := NewApplySpecEditsTool(store, uispec.NewGate(false))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"interface_id": "if-1",
		"actions": []interface{}{
			map[string]interface{}{
				"type":      "rename_widget",
				"widget_id": "w1",
				"payload":   map[string]interface{}{"title": "Total runs"},
			},
		},
	})
	require.NoError(t, err)
	require.Nil(t, result["error"])

	assert.Equal(t, "ver-2", result["version_id"])
	assert.Equal(t, 2, result["version_number"])

	specJSON := result["spec_json"].(map[string]interface{})
	components := specJSON["components"].([]interface{})
	first := components[0].(map[string]interface{})
	props := first["props"].(map[string]interface{})
	assert.Equal(t, "Total runs", props["title"])
}

func TestApplySpecEditsTool_ReplacementSpec(t *testing.T) {
	store := newFakeSpecStore()
	tool := NewApplySpecEditsTool(store, uispec.NewGate(false))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"interface_id": "if-new",
		"spec": map[string]interface{}{
			"components": []interface{}{
				map[string]interface{}{"id": "w1", "type": "kpi",
					"props": map[string]interface{}{"metric": "calls"}},
			},
		},
	})
	require.NoError(t, err)
	require.Nil(t, result["error"])

	// The stored spec is canonicalized before persistence.
	specJSON := result["spec_json"].(map[string]interface{})
	components := specJSON["components"].([]interface{})
	first := components[0].(map[string]interface{})
	assert.Equal(t, uispec.TypeStatCard, first["type"])
}

func TestApplySpecEditsTool_StrictGateBlocksBadSpecs(t *testing.T) {
	store := newFakeSpecStore()
	tool := NewApplySpecEditsTool(store, uispec.NewGate(false))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"interface_id": "if-new",
		"spec": map[string]interface{}{
			"components": []interface{}{
				map[string]interface{}{"id": "w1", "type": "not-a-widget"},
			},
		},
	})
	require.NoError(t, err)

	// Rejected specs are never saved as versions.
	assert.Equal(t, true, result["error"])
	assert.NotEmpty(t, result["validation_errors"])
	assert.Equal(t, 0, store.versions)
}

func TestApplySpecEditsTool_RequiresActionsOrSpec(t *testing.T) {
	store := newFakeSpecStore()
	seedSpec(t, store, "if-1")
	tool := NewApplySpecEditsTool(store, uispec.NewGate(false))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"interface_id": "if-1",
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["error"])
}
