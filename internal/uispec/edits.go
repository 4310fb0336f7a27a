package uispec

import (
	"fmt"

	"github.com/glasspane/interface-orchestrator/internal/editbatch"
)

// ApplyEdits applies a consolidated batch of interactive edit actions to a
// specification and returns the edited copy. Simple structural changes
// bypass the agent entirely; the result still passes through the render
// gate before becoming a new version. Actions against unknown widgets are
// skipped with a warning rather than failing the batch.
func ApplyEdits(spec *Specification, actions []editbatch.Action) (*Specification, []string) {
	out := cloneSpec(spec)
	var warnings []string

	for _, action := range actions {
		switch action.Type {
		case editbatch.ActionToggleWidget:
			c := findComponent(out, action.WidgetID)
			if c == nil {
				warnings = append(warnings, unknownWidget(action))
				continue
			}
			visible, _ := action.Payload["visible"].(bool)
			c.Props["hidden"] = !visible

		case editbatch.ActionRenameWidget:
			c := findComponent(out, action.WidgetID)
			if c == nil {
				warnings = append(warnings, unknownWidget(action))
				continue
			}
			if title, ok := action.Payload["title"].(string); ok {
				c.Props["title"] = title
			}

		case editbatch.ActionSwitchChartType:
			c := findComponent(out, action.WidgetID)
			if c == nil {
				warnings = append(warnings, unknownWidget(action))
				continue
			}
			raw, _ := action.Payload["chart_type"].(string)
			canonical, ok := ResolveComponentType(raw)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("unknown chart type %q for widget %q", raw, action.WidgetID))
				continue
			}
			c.Type = canonical

		case editbatch.ActionSetDensity:
			if density, ok := action.Payload["density"].(string); ok {
				out.DesignTokens["density"] = density
			}

		case editbatch.ActionSetPalette:
			if palette, ok := action.Payload["palette"].(string); ok {
				out.DesignTokens["palette"] = palette
			}

		case editbatch.ActionReorderWidgets:
			order, ok := action.Payload["order"].([]interface{})
			if !ok {
				warnings = append(warnings, "reorder action has no order list")
				continue
			}
			out.Components = reorder(out.Components, order)

		default:
			warnings = append(warnings, fmt.Sprintf("unknown edit action %q", action.Type))
		}
	}

	return out, warnings
}

func unknownWidget(action editbatch.Action) string {
	return fmt.Sprintf("edit %s targets unknown widget %q", action.Type, action.WidgetID)
}

func cloneSpec(spec *Specification) *Specification {
	out := &Specification{
		Components:   make([]Component, len(spec.Components)),
		DesignTokens: make(map[string]interface{}, len(spec.DesignTokens)),
		Layout:       spec.Layout,
	}
	for i, c := range spec.Components {
		props := make(map[string]interface{}, len(c.Props))
		for k, v := range c.Props {
			props[k] = v
		}
		out.Components[i] = Component{ID: c.ID, Type: c.Type, Props: props, malformed: c.malformed}
	}
	for k, v := range spec.DesignTokens {
		out.DesignTokens[k] = v
	}
	return out
}

func findComponent(spec *Specification, id string) *Component {
	for i := range spec.Components {
		if spec.Components[i].ID == id {
			return &spec.Components[i]
		}
	}
	return nil
}

// reorder arranges components to match the requested id order. Components
// absent from the order list keep their relative order after the listed
// ones; ids that match nothing are ignored.
func reorder(components []Component, order []interface{}) []Component {
	byID := make(map[string]int, len(components))
	for i, c := range components {
		byID[c.ID] = i
	}

	used := make(map[int]bool, len(components))
	out := make([]Component, 0, len(components))
	for _, raw := range order {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		if i, ok := byID[id]; ok && !used[i] {
			out = append(out, components[i])
			used[i] = true
		}
	}
	for i, c := range components {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}
