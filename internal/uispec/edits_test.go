package uispec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasspane/interface-orchestrator/internal/editbatch"
)

func editSpec() *Specification {
	return &Specification{
		Components: []Component{
			{ID: "w1", Type: TypeStatCard, Props: map[string]interface{}{"title": "Runs"}},
			{ID: "w2", Type: TypeLineChart, Props: map[string]interface{}{"metric": "executions"}},
			{ID: "w3", Type: TypeDataTable, Props: map[string]interface{}{}},
		},
		DesignTokens: map[string]interface{}{"primary": "#111"},
	}
}

func TestApplyEdits_RenameAndToggle(t *testing.T) {
	spec := editSpec()

	edited, warnings := ApplyEdits(spec, []editbatch.Action{
		{Type: editbatch.ActionRenameWidget, WidgetID: "w1",
			Payload: map[string]interface{}{"title": "Total runs"}},
		{Type: editbatch.ActionToggleWidget, WidgetID: "w2",
			Payload: map[string]interface{}{"visible": false}},
	})

	assert.Empty(t, warnings)
	assert.Equal(t, "Total runs", edited.Components[0].Props["title"])
	assert.Equal(t, true, edited.Components[1].Props["hidden"])

	// Original spec is untouched; versions are append-only upstream.
	assert.Equal(t, "Runs", spec.Components[0].Props["title"])
	assert.NotContains(t, spec.Components[1].Props, "hidden")
}

func TestApplyEdits_SwitchChartType(t *testing.T) {
	spec := editSpec()

	edited, warnings := ApplyEdits(spec, []editbatch.Action{
		{Type: editbatch.ActionSwitchChartType, WidgetID: "w2",
			Payload: map[string]interface{}{"chart_type": "bar-chart"}},
	})

	assert.Empty(t, warnings)
	assert.Equal(t, TypeBarChart, edited.Components[1].Type)
}

func TestApplyEdits_SpecGlobalActions(t *testing.T) {
	spec := editSpec()

	edited, warnings := ApplyEdits(spec, []editbatch.Action{
		{Type: editbatch.ActionSetDensity, Payload: map[string]interface{}{"density": "compact"}},
		{Type: editbatch.ActionSetPalette, Payload: map[string]interface{}{"palette": "slate"}},
	})

	assert.Empty(t, warnings)
	assert.Equal(t, "compact", edited.DesignTokens["density"])
	assert.Equal(t, "slate", edited.DesignTokens["palette"])
	assert.Equal(t, "#111", edited.DesignTokens["primary"])
}

func TestApplyEdits_Reorder(t *testing.T) {
	spec := editSpec()

	edited, warnings := ApplyEdits(spec, []editbatch.Action{
		{Type: editbatch.ActionReorderWidgets,
			Payload: map[string]interface{}{"order": []interface{}{"w3", "w1"}}},
	})

	assert.Empty(t, warnings)
	ids := []string{edited.Components[0].ID, edited.Components[1].ID, edited.Components[2].ID}
	// Unlisted widgets keep their relative order after the listed ones.
	assert.Equal(t, []string{"w3", "w1", "w2"}, ids)
}

func TestApplyEdits_UnknownTargetsWarnAndContinue(t *testing.T) {
	spec := editSpec()

	edited, warnings := ApplyEdits(spec, []editbatch.Action{
		{Type: editbatch.ActionRenameWidget, WidgetID: "missing",
			Payload: map[string]interface{}{"title": "X"}},
		{Type: editbatch.ActionSwitchChartType, WidgetID: "w2",
			Payload: map[string]interface{}{"chart_type": "hologram"}},
		{Type: editbatch.ActionRenameWidget, WidgetID: "w1",
			Payload: map[string]interface{}{"title": "Kept"}},
	})

	require.Len(t, warnings, 2)
	// The valid edit in the same batch still applies.
	assert.Equal(t, "Kept", edited.Components[0].Props["title"])
	assert.Equal(t, TypeLineChart, edited.Components[1].Type)
}
