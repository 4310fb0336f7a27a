package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outcomeCatalog = `outcomes:
  - slug: reduce-missed-calls
    title: Reduce missed calls
    description: Track answered vs missed calls for voice agents
    metrics: [calls_answered, calls_missed, answer_rate]
    platforms: [vapi, retell]
  - slug: automation-roi
    title: Prove automation ROI
    description: Show hours saved and runs completed by workflows
    metrics: [runs_completed, hours_saved]
    platforms: [n8n, make]
`

func writeOutcomes(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outcomes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(outcomeCatalog), 0o644))
	return path
}

func TestOutcomeLookupTool_BySlug(t *testing.T) {
	tool := NewOutcomeLookupTool(writeOutcomes(t))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"slug": "automation-roi",
	})
	require.NoError(t, err)

	card := result["card"].(map[string]interface{})
	assert.Equal(t, "Prove automation ROI", card["title"])
	assert.Equal(t, []interface{}{"runs_completed", "hours_saved"}, card["metrics"])
}

func TestOutcomeLookupTool_UnknownSlug(t *testing.T) {
	tool := NewOutcomeLookupTool(writeOutcomes(t))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"slug": "world-peace",
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["error"])
}

func TestOutcomeLookupTool_QueryFilter(t *testing.T) {
	tool := NewOutcomeLookupTool(writeOutcomes(t))

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "missed",
	})
	require.NoError(t, err)

	cards := result["cards"].([]interface{})
	require.Len(t, cards, 1)
	card := cards[0].(map[string]interface{})
	assert.Equal(t, "reduce-missed-calls", card["slug"])
}

func TestOutcomeLookupTool_EmptyQueryListsAll(t *testing.T) {
	tool := NewOutcomeLookupTool(writeOutcomes(t))

	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)

	cards := result["cards"].([]interface{})
	assert.Len(t, cards, 2)
}

func TestOutcomeLookupTool_MissingCatalog(t *testing.T) {
	tool := NewOutcomeLookupTool(filepath.Join(t.TempDir(), "absent.yaml"))

	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, result["cards"])
}
