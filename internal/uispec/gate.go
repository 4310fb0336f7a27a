package uispec

import (
	"fmt"
	"log"
	"os"
)

// Gate makes a raw, possibly-malformed spec safe to render. The pipeline is
// normalize, then a soft schema check, then per-component type resolution
// and prop sanitization. Per-component defects are recovered by dropping
// the component; only a non-object top-level input yields a nil spec.
type Gate struct {
	// devMode enables loud per-item drop diagnostics to catch upstream
	// generation bugs. Production keeps identical drop semantics with an
	// aggregate log line only.
	devMode bool
}

// NewGate creates a render gate. devMode controls diagnostic verbosity
// only; drop behavior is the same in both modes.
func NewGate(devMode bool) *Gate {
	return &Gate{devMode: devMode}
}

// defaultGate reads APP_ENV once at startup, matching how the rest of the
// service sources configuration.
var defaultGate = NewGate(os.Getenv("APP_ENV") == "development")

// ValidateBeforeRender runs the default gate. Consumed by every render
// entry point.
func ValidateBeforeRender(raw interface{}) *RenderValidationResult {
	return defaultGate.ValidateBeforeRender(raw)
}

// ValidateBeforeRender produces a render-safe spec plus structured
// diagnostics. It never fails for per-component problems; the catastrophic
// top-level non-object case is reported via a nil Spec and a schema issue.
func (g *Gate) ValidateBeforeRender(raw interface{}) *RenderValidationResult {
	result := &RenderValidationResult{
		Warnings:          []string{},
		DroppedComponents: []DroppedComponent{},
		SchemaIssues:      []string{},
	}

	spec, err := Normalize(raw)
	if err != nil {
		result.SchemaIssues = append(result.SchemaIssues, err.Error())
		log.Printf(`{"level":"error","message":"Spec rejected before render","error":"%v"}`, err)
		return result
	}

	// Schema deviations are collected but never block rendering: at render
	// time availability matters more than strictness.
	issues := checkSchema(spec)
	result.SchemaIssues = append(result.SchemaIssues, issues...)
	result.Warnings = append(result.Warnings, issues...)

	survivors := make([]Component, 0, len(spec.Components))
	for _, c := range spec.Components {
		if c.malformed {
			g.recordDrop(result, DroppedComponent{ID: c.ID, Type: c.Type, Reason: DropReasonInvalidShape})
			continue
		}

		canonical, ok := ResolveComponentType(c.Type)
		if !ok {
			g.recordDrop(result, DroppedComponent{ID: c.ID, Type: c.Type, Reason: DropReasonUnknownType})
			continue
		}

		c.Type = canonical
		c.Props = SanitizeProps(canonical, c.Props)
		survivors = append(survivors, c)
	}

	spec.Components = survivors
	result.Spec = spec

	if len(result.DroppedComponents) > 0 && !g.devMode {
		log.Printf(`{"level":"warn","message":"Render gate dropped components","dropped":%d,"survivors":%d}`,
			len(result.DroppedComponents), len(survivors))
	}

	return result
}

func (g *Gate) recordDrop(result *RenderValidationResult, drop DroppedComponent) {
	result.DroppedComponents = append(result.DroppedComponents, drop)
	if g.devMode {
		log.Printf(`{"level":"warn","message":"Render gate dropped component","id":"%s","type":"%s","reason":"%s"}`,
			drop.ID, drop.Type, drop.Reason)
	}
}

// ValidateStrict is the generation-time hard gate used before persisting a
// new interface version: any schema issue or dropped component is an
// error, so a bad version is never saved. The render path stays soft.
func (g *Gate) ValidateStrict(raw interface{}) (*Specification, error) {
	result := g.ValidateBeforeRender(raw)
	if result.Spec == nil {
		return nil, fmt.Errorf("spec is not renderable: %s", result.SchemaIssues[0])
	}
	if len(result.DroppedComponents) > 0 {
		d := result.DroppedComponents[0]
		return nil, fmt.Errorf("spec contains %d invalid component(s), first: id=%q type=%q reason=%s",
			len(result.DroppedComponents), d.ID, d.Type, d.Reason)
	}
	if len(result.SchemaIssues) > 0 {
		return nil, fmt.Errorf("spec has schema issues: %v", result.SchemaIssues)
	}
	return result.Spec, nil
}

// checkSchema verifies the full specification shape and returns a list of
// human-readable deviations. Duplicated or missing component ids break the
// interactive edit path, so they are flagged even though rendering
// proceeds.
func checkSchema(spec *Specification) []string {
	var issues []string

	seen := make(map[string]bool, len(spec.Components))
	for i, c := range spec.Components {
		if c.malformed {
			continue
		}
		if c.ID == "" {
			issues = append(issues, fmt.Sprintf("component %d has no id", i))
			continue
		}
		if seen[c.ID] {
			issues = append(issues, fmt.Sprintf("duplicate component id %q", c.ID))
		}
		seen[c.ID] = true
		if c.Type == "" {
			issues = append(issues, fmt.Sprintf("component %q has no type", c.ID))
		}
	}

	return issues
}
