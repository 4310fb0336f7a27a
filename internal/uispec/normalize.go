package uispec

import (
	"fmt"
)

// NormalizationError is returned when the raw input cannot be repaired into
// a specification at all: nil, a primitive, or an array at the top level.
// Every other malformation is repaired rather than rejected, because the
// upstream generator is unreliable by nature and hard failures would break
// the user-facing conversation.
type NormalizationError struct {
	Got string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("spec normalization failed: top-level value is %s, expected object", e.Got)
}

// Normalize coerces arbitrary generator output into a Specification,
// filling required-but-missing fields with defaults. It is idempotent:
// Normalize(Normalize(x)) yields the same result as Normalize(x).
func Normalize(raw interface{}) (*Specification, error) {
	switch v := raw.(type) {
	case *Specification:
		if v == nil {
			return nil, &NormalizationError{Got: "nil"}
		}
		return normalizeSpec(v), nil
	case Specification:
		return normalizeSpec(&v), nil
	case map[string]interface{}:
		return normalizeMap(v), nil
	case nil:
		return nil, &NormalizationError{Got: "nil"}
	case []interface{}:
		return nil, &NormalizationError{Got: "array"}
	default:
		return nil, &NormalizationError{Got: fmt.Sprintf("%T", raw)}
	}
}

// normalizeSpec re-applies defaults to an already-typed specification.
func normalizeSpec(in *Specification) *Specification {
	out := &Specification{
		Components:   in.Components,
		DesignTokens: in.DesignTokens,
		Layout:       in.Layout,
	}
	if out.Components == nil {
		out.Components = []Component{}
	}
	if out.DesignTokens == nil {
		out.DesignTokens = map[string]interface{}{}
	}
	out.DesignTokens = scalarTokens(out.DesignTokens)
	for i := range out.Components {
		if out.Components[i].Props == nil && !out.Components[i].malformed {
			out.Components[i].Props = map[string]interface{}{}
		}
	}
	return out
}

func normalizeMap(obj map[string]interface{}) *Specification {
	spec := &Specification{
		Components:   []Component{},
		DesignTokens: map[string]interface{}{},
	}

	spec.Components = coerceComponents(rawComponents(obj))
	spec.DesignTokens = scalarTokens(rawTokens(obj))

	if layout, ok := obj["layout"].(map[string]interface{}); ok {
		spec.Layout = layout
	}

	return spec
}

// rawComponents extracts the component list, tolerating the legacy
// "widgets" key used by earlier generator prompts.
func rawComponents(obj map[string]interface{}) []interface{} {
	for _, key := range []string{"components", "widgets"} {
		if list, ok := obj[key].([]interface{}); ok {
			return list
		}
	}
	return nil
}

// rawTokens extracts design tokens, tolerating legacy key spellings.
func rawTokens(obj map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"design_tokens", "designTokens", "tokens"} {
		if tokens, ok := obj[key].(map[string]interface{}); ok {
			return tokens
		}
	}
	return nil
}

// coerceComponents converts raw entries into Components. Entries that are
// not objects are preserved but flagged so the gate can drop them with a
// diagnostic instead of this layer silently losing them.
func coerceComponents(list []interface{}) []Component {
	out := make([]Component, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			out = append(out, Component{malformed: true})
			continue
		}
		out = append(out, coerceComponent(m))
	}
	return out
}

func coerceComponent(m map[string]interface{}) Component {
	c := Component{Props: map[string]interface{}{}}

	if id, ok := m["id"].(string); ok {
		c.ID = id
	}
	// "component" is the legacy field name for the widget type.
	if t, ok := m["type"].(string); ok {
		c.Type = t
	} else if t, ok := m["component"].(string); ok {
		c.Type = t
	}
	if props, ok := m["props"].(map[string]interface{}); ok {
		c.Props = props
	}

	return c
}

// scalarTokens keeps only string/number/bool token values. Design tokens
// are a flat scalar mapping; nested structures are generator noise.
func scalarTokens(tokens map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(tokens))
	for k, v := range tokens {
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
			out[k] = v
		}
	}
	return out
}
