package thread

import (
	"context"
	"time"
)

// Mode is the top-level conversational mode for a thread.
type Mode string

const (
	ModePlan Mode = "plan"
	ModeEdit Mode = "edit"
)

// Phase tracks where a conversation stands in the generate/preview/deploy
// flow. Callers read the phase to decide whether to show a preview, allow
// editing, or allow deployment; the store itself enforces no transition
// table. Keeping transition logic in the tool handlers avoids coupling the
// storage primitive to evolving conversational business rules.
type Phase string

const (
	PhasePlan            Phase = "plan"
	PhaseReadyForPreview Phase = "ready_for_preview"
	PhasePreviewing      Phase = "previewing"
	PhasePreviewReady    Phase = "preview_ready"
	PhaseEditing         Phase = "editing"
	PhaseDeployReady     Phase = "deploy_ready"
)

// State is the per-conversation state machine record.
// PreviewVersionID is only set once a preview render has succeeded.
type State struct {
	ThreadID         string    `json:"thread_id"`
	Mode             Mode      `json:"mode"`
	Phase            Phase     `json:"phase"`
	SchemaReady      bool      `json:"schema_ready"`
	MappingComplete  bool      `json:"mapping_complete"`
	TemplateID       string    `json:"template_id,omitempty"`
	LastPreviewRunID string    `json:"last_preview_run_id,omitempty"`
	PreviewVersionID string    `json:"preview_version_id,omitempty"`
	LastStreamCursor string    `json:"last_stream_cursor,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Patch is a partial update against a thread's state. Nil fields are left
// untouched by the merge.
type Patch struct {
	Mode             *Mode   `json:"mode,omitempty"`
	Phase            *Phase  `json:"phase,omitempty"`
	SchemaReady      *bool   `json:"schema_ready,omitempty"`
	MappingComplete  *bool   `json:"mapping_complete,omitempty"`
	TemplateID       *string `json:"template_id,omitempty"`
	LastPreviewRunID *string `json:"last_preview_run_id,omitempty"`
	PreviewVersionID *string `json:"preview_version_id,omitempty"`
	LastStreamCursor *string `json:"last_stream_cursor,omitempty"`
}

// DefaultState is the state a thread starts in when first touched.
func DefaultState(threadID string) State {
	return State{
		ThreadID: threadID,
		Mode:     ModePlan,
		Phase:    PhasePlan,
	}
}

// Store is the keyed thread-state store. Update performs a shallow merge
// against the existing state, or against DefaultState if the thread has
// never been seen.
type Store interface {
	Get(ctx context.Context, threadID string) (*State, bool, error)
	Update(ctx context.Context, threadID string, patch Patch) (*State, error)
	Reset(ctx context.Context, threadID string) error
}

// merge applies a patch to a state, shallow field-by-field.
func merge(state State, patch Patch) State {
	if patch.Mode != nil {
		state.Mode = *patch.Mode
	}
	if patch.Phase != nil {
		state.Phase = *patch.Phase
	}
	if patch.SchemaReady != nil {
		state.SchemaReady = *patch.SchemaReady
	}
	if patch.MappingComplete != nil {
		state.MappingComplete = *patch.MappingComplete
	}
	if patch.TemplateID != nil {
		state.TemplateID = *patch.TemplateID
	}
	if patch.LastPreviewRunID != nil {
		state.LastPreviewRunID = *patch.LastPreviewRunID
	}
	if patch.PreviewVersionID != nil {
		state.PreviewVersionID = *patch.PreviewVersionID
	}
	if patch.LastStreamCursor != nil {
		state.LastStreamCursor = *patch.LastStreamCursor
	}
	state.UpdatedAt = time.Now().UTC()
	return state
}
