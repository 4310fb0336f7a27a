package uispec

// Specification is the canonical shape of a dashboard UI spec as rendered
// for a client workspace. It is produced by the builder agent, validated by
// the render gate, and persisted as an immutable interface version.
type Specification struct {
	Components   []Component            `json:"components"`
	DesignTokens map[string]interface{} `json:"design_tokens"`
	Layout       map[string]interface{} `json:"layout,omitempty"`
}

// Component is one widget entry within a specification. Type is the raw
// string emitted by the generator and may be a legacy alias until the gate
// rewrites it to the canonical renderer identity.
type Component struct {
	ID    string                 `json:"id"`
	Type  string                 `json:"type"`
	Props map[string]interface{} `json:"props"`

	// malformed marks entries that were not objects in the raw input.
	// The gate drops them with reason invalid_shape. Zero value means
	// well-formed, so literals built in code are never affected.
	malformed bool
}

// Drop reasons recorded for components removed by the render gate.
const (
	DropReasonUnknownType  = "unknown_type"
	DropReasonNoRenderer   = "no_renderer"
	DropReasonInvalidShape = "invalid_shape"
)

// DroppedComponent is a diagnostic record for a component removed during
// validation. It is never persisted.
type DroppedComponent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RenderValidationResult is the output of the render gate. Spec is nil only
// when the top-level input was not an object; every other defect is
// recovered by dropping the offending piece and continuing.
type RenderValidationResult struct {
	Spec              *Specification     `json:"spec"`
	Warnings          []string           `json:"warnings"`
	DroppedComponents []DroppedComponent `json:"dropped_components"`
	SchemaIssues      []string           `json:"schema_issues"`
}
