package models

import (
	"time"
)

// TurnRequest is one conversational turn against an interface thread.
type TurnRequest struct {
	ThreadID    string                 `json:"thread_id" binding:"required"`
	InterfaceID string                 `json:"interface_id" binding:"required"`
	Message     string                 `json:"message" binding:"required"`
	Mode        string                 `json:"mode,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// TurnResponse is the normalized outcome of a turn.
type TurnResponse struct {
	ThreadID          string     `json:"thread_id"`
	Text              string     `json:"text"`
	Steps             []TurnStep `json:"steps"`
	SelectionComplete bool       `json:"selection_complete"`
	Phase             string     `json:"phase"`
	VersionID         string     `json:"version_id,omitempty"`
}

// TurnStep is one tool invocation recorded during a turn.
type TurnStep struct {
	Tool   string                 `json:"tool"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Output map[string]interface{} `json:"output,omitempty"`
}

// EditBatchRequest carries a batch of interactive edit actions from the
// dashboard editor.
type EditBatchRequest struct {
	InterfaceID string       `json:"interface_id" binding:"required"`
	Actions     []EditAction `json:"actions" binding:"required"`
}

// EditAction is one interactive edit as sent over the wire.
type EditAction struct {
	Type     string                 `json:"type" binding:"required"`
	WidgetID string                 `json:"widget_id,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

// EditBatchResponse reports the saved version after a batch is applied.
type EditBatchResponse struct {
	InterfaceID   string                 `json:"interface_id"`
	VersionID     string                 `json:"version_id"`
	VersionNumber int                    `json:"version_number"`
	SpecJSON      map[string]interface{} `json:"spec_json"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// ValidateRequest asks the render-validation gate to check a raw spec.
type ValidateRequest struct {
	Spec interface{} `json:"spec"`
}

// ValidateResponse reports the gate's outcome without persisting
// anything.
type ValidateResponse struct {
	Spec              map[string]interface{} `json:"spec,omitempty"`
	Warnings          []string               `json:"warnings"`
	DroppedComponents []DroppedComponent     `json:"dropped_components"`
	SchemaIssues      []string               `json:"schema_issues"`
}

// DroppedComponent mirrors a component the gate removed.
type DroppedComponent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// InterfaceVersion is one immutable row of the append-only version
// history for an interface.
type InterfaceVersion struct {
	ID            string                 `json:"id" db:"id"`
	InterfaceID   string                 `json:"interface_id" db:"interface_id"`
	VersionNumber int                    `json:"version_number" db:"version_number"`
	SpecJSON      map[string]interface{} `json:"spec_json" db:"spec_json"`
	DesignTokens  map[string]interface{} `json:"design_tokens" db:"design_tokens"`
	CreatedBy     string                 `json:"created_by" db:"created_by"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}
