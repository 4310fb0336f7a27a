package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glasspane/interface-orchestrator/internal/agent"
	"github.com/glasspane/interface-orchestrator/internal/editbatch"
	"github.com/glasspane/interface-orchestrator/internal/metrics"
	"github.com/glasspane/interface-orchestrator/internal/thread"
	"github.com/glasspane/interface-orchestrator/internal/tools"
	"github.com/glasspane/interface-orchestrator/internal/uispec"
)

// Service orchestrates conversation turns, interface versioning, and
// preview runs. It is also the Postgres-backed SpecStore the tool layer
// reads and writes through.
type Service struct {
	pool          *pgxpool.Pool
	RuntimeClient agent.RuntimeClientInterface
	Threads       thread.Store
	Gate          *uispec.Gate
	Builder       agent.Agent
	TurnMetrics   *metrics.TurnMetrics
}

// NewService creates a new orchestration service
func NewService(pool *pgxpool.Pool, threads thread.Store, gate *uispec.Gate, builder agent.Agent, turnMetrics *metrics.TurnMetrics) *Service {
	return &Service{
		pool:          pool,
		RuntimeClient: agent.NewRuntimeClient(),
		Threads:       threads,
		Gate:          gate,
		Builder:       builder,
		TurnMetrics:   turnMetrics,
	}
}

// Interface represents a dashboard interface entity
type Interface struct {
	ID                  uuid.UUID  `json:"id"`
	OrgID               uuid.UUID  `json:"org_id"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	CreatedByUserID     uuid.UUID  `json:"created_by_user_id"`
	ProductionVersionID *uuid.UUID `json:"production_version_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Version represents one row of an interface's append-only version
// history
type Version struct {
	ID            uuid.UUID `json:"id"`
	InterfaceID   uuid.UUID `json:"interface_id"`
	VersionNumber int       `json:"version_number"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateInterface creates a new interface in the database
func (s *Service) CreateInterface(ctx context.Context, orgID uuid.UUID, name, description string, userID uuid.UUID) (uuid.UUID, error) {
	var interfaceID uuid.UUID

	err := s.pool.QueryRow(ctx,
		`INSERT INTO interfaces (org_id, name, description, created_by_user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		orgID, name, description, userID,
	).Scan(&interfaceID)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create interface: %w", err)
	}

	return interfaceID, nil
}

// GetInterface retrieves an interface by ID
func (s *Service) GetInterface(ctx context.Context, interfaceID uuid.UUID) (*Interface, error) {
	var iface Interface

	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, name, description, created_by_user_id, production_version_id, created_at, updated_at
		FROM interfaces
		WHERE id = $1
	`, interfaceID).Scan(
		&iface.ID,
		&iface.OrgID,
		&iface.Name,
		&iface.Description,
		&iface.CreatedByUserID,
		&iface.ProductionVersionID,
		&iface.CreatedAt,
		&iface.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("interface not found")
		}
		return nil, fmt.Errorf("failed to get interface: %w", err)
	}

	return &iface, nil
}

// GetVersions retrieves the version history for an interface, newest
// first
func (s *Service) GetVersions(ctx context.Context, interfaceID uuid.UUID) ([]*Version, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, interface_id, version_number, created_by, created_at
		FROM interface_versions
		WHERE interface_id = $1
		ORDER BY version_number DESC
	`, interfaceID)

	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*Version, 0)
	for rows.Next() {
		var version Version
		err := rows.Scan(
			&version.ID,
			&version.InterfaceID,
			&version.VersionNumber,
			&version.CreatedBy,
			&version.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, &version)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// CurrentSpec returns the latest persisted spec for an interface.
// Implements tools.SpecStore.
func (s *Service) CurrentSpec(ctx context.Context, interfaceID string) (map[string]interface{}, map[string]interface{}, string, error) {
	var (
		versionID    string
		specJSON     map[string]interface{}
		designTokens map[string]interface{}
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, spec_json, design_tokens
		FROM interface_versions
		WHERE interface_id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`, interfaceID).Scan(&versionID, &specJSON, &designTokens)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, "", tools.ErrInterfaceNotFound
		}
		return nil, nil, "", fmt.Errorf("failed to load current spec: %w", err)
	}

	return specJSON, designTokens, versionID, nil
}

// SaveVersion appends a new immutable version row for an interface.
// Implements tools.SpecStore; agent-driven saves are attributed to the
// builder agent.
func (s *Service) SaveVersion(ctx context.Context, interfaceID string, spec *uispec.Specification) (string, int, error) {
	return s.SaveVersionAs(ctx, interfaceID, spec, "agent")
}

// SaveVersionAs appends a version attributed to a specific actor.
func (s *Service) SaveVersionAs(ctx context.Context, interfaceID string, spec *uispec.Specification, createdBy string) (string, int, error) {
	encoded, err := json.Marshal(spec)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode spec: %w", err)
	}
	tokens, err := json.Marshal(spec.DesignTokens)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode design tokens: %w", err)
	}

	var (
		versionID     string
		versionNumber int
	)
	err = s.pool.QueryRow(ctx, `
		INSERT INTO interface_versions (interface_id, version_number, spec_json, design_tokens, created_by)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2::jsonb, $3::jsonb, $4
		FROM interface_versions
		WHERE interface_id = $1
		RETURNING id, version_number
	`, interfaceID, string(encoded), string(tokens), createdBy).Scan(&versionID, &versionNumber)

	if err != nil {
		return "", 0, fmt.Errorf("failed to save version: %w", err)
	}

	return versionID, versionNumber, nil
}

// TurnResult is what RunTurn hands back to the gateway.
type TurnResult struct {
	Text              string
	Steps             []agent.Step
	SelectionComplete bool
	Phase             thread.Phase
	VersionID         string
}

// expectedToolsForPhase lists the tool the builder is expected to call
// in phases where the turn exists to make a selection.
var expectedToolsForPhase = map[thread.Phase][]string{
	thread.PhasePlan:            {"navigate_phase"},
	thread.PhaseReadyForPreview: {"navigate_phase"},
	thread.PhaseEditing:         {"apply_spec_edits"},
}

// RunTurn executes one conversational turn against a thread.
func (s *Service) RunTurn(ctx context.Context, threadID, interfaceID, message string, turnContext map[string]interface{}) (*TurnResult, error) {
	state, _, err := s.Threads.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread state: %w", err)
	}
	if state == nil {
		defaultState := thread.DefaultState(threadID)
		state = &defaultState
	}

	started := time.Now()
	if s.TurnMetrics != nil {
		s.TurnMetrics.RecordTurnStarted(ctx, threadID, string(state.Mode))
	}

	mergedContext := map[string]interface{}{
		"interface_id": interfaceID,
		"thread_id":    threadID,
		"phase":        string(state.Phase),
		"mode":         string(state.Mode),
	}
	for k, v := range turnContext {
		mergedContext[k] = v
	}

	result, err := agent.RunNetworkToText(ctx, agent.RunOptions{
		Agent:       s.Builder,
		Message:     message,
		ThreadID:    threadID,
		Context:     mergedContext,
		ExpectTools: expectedToolsForPhase[state.Phase],
	})
	if err != nil {
		if s.TurnMetrics != nil {
			s.TurnMetrics.RecordTurnFailed(ctx, threadID, string(state.Mode), classifyTurnError(err), time.Since(started))
		}
		return nil, err
	}

	if s.TurnMetrics != nil {
		s.TurnMetrics.RecordTurnCompleted(ctx, threadID, string(state.Mode), len(result.Steps), time.Since(started))
	}

	// Tools may have advanced the phase during the turn; report the
	// post-turn state.
	state, _, err = s.Threads.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload thread state: %w", err)
	}
	phase := thread.PhasePlan
	versionID := ""
	if state != nil {
		phase = state.Phase
		versionID = state.PreviewVersionID
	}

	return &TurnResult{
		Text:              result.Text,
		Steps:             result.Steps,
		SelectionComplete: result.SelectionComplete,
		Phase:             phase,
		VersionID:         versionID,
	}, nil
}

func classifyTurnError(err error) string {
	var execErr *tools.ExecutionError
	if errors.As(err, &execErr) {
		return "tool_validation_error"
	}
	return "agent_error"
}

// ApplyEditBatch applies a drained batch of interactive edits to the
// interface's current spec and appends the result as a new version.
// The strict gate runs before persistence so a rejected spec never
// produces a version row.
func (s *Service) ApplyEditBatch(ctx context.Context, interfaceID, userID string, actions []editbatch.Action) (*EditBatchResult, error) {
	specJSON, _, _, err := s.CurrentSpec(ctx, interfaceID)
	if err != nil {
		return nil, err
	}

	spec, err := uispec.Normalize(specJSON)
	if err != nil {
		return nil, fmt.Errorf("stored spec failed normalization: %w", err)
	}

	edited, warnings := uispec.ApplyEdits(spec, actions)

	// The gate's canonicalized output is what gets persisted, so alias
	// types and unsanitized props never reach a version row.
	validated, err := s.Gate.ValidateStrict(edited)
	if err != nil {
		if s.TurnMetrics != nil {
			s.TurnMetrics.RecordEditBatchFlushed(ctx, len(actions), false)
		}
		return nil, fmt.Errorf("edited spec rejected: %w", err)
	}

	versionID, versionNumber, err := s.SaveVersionAs(ctx, interfaceID, validated, userID)
	if err != nil {
		if s.TurnMetrics != nil {
			s.TurnMetrics.RecordEditBatchFlushed(ctx, len(actions), false)
		}
		return nil, err
	}

	if s.TurnMetrics != nil {
		s.TurnMetrics.RecordEditBatchFlushed(ctx, len(actions), true)
	}

	encoded, err := tools.SpecToMap(validated)
	if err != nil {
		return nil, err
	}

	return &EditBatchResult{
		VersionID:     versionID,
		VersionNumber: versionNumber,
		SpecJSON:      encoded,
		Warnings:      warnings,
	}, nil
}

// EditBatchResult reports a persisted edit batch.
type EditBatchResult struct {
	VersionID     string
	VersionNumber int
	SpecJSON      map[string]interface{}
	Warnings      []string
}

// ValidateSpec runs the render-validation gate over a raw spec without
// persisting anything.
func (s *Service) ValidateSpec(ctx context.Context, raw interface{}) *uispec.RenderValidationResult {
	started := time.Now()
	result := s.Gate.ValidateBeforeRender(raw)

	if s.TurnMetrics != nil {
		droppedByReason := make(map[string]int)
		for _, dropped := range result.DroppedComponents {
			droppedByReason[dropped.Reason]++
		}
		s.TurnMetrics.RecordValidation(ctx, time.Since(started), droppedByReason)
	}

	return result
}

// StartPreviewRun kicks off a preview build in the agent runtime for
// the interface's latest version and moves the thread into the
// previewing phase.
func (s *Service) StartPreviewRun(ctx context.Context, threadID, interfaceID string) (string, error) {
	if !s.RuntimeClient.IsHealthy(ctx) {
		return "", fmt.Errorf("agent runtime unavailable")
	}

	specJSON, _, versionID, err := s.CurrentSpec(ctx, interfaceID)
	if err != nil {
		return "", err
	}

	runID, err := s.RuntimeClient.Invoke(ctx, agent.RunRequest{
		TraceID:     uuid.New().String(),
		ThreadID:    threadID,
		InterfaceID: interfaceID,
		VersionID:   versionID,
		Spec:        specJSON,
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke agent runtime: %w", err)
	}

	previewing := thread.PhasePreviewing
	if _, err := s.Threads.Update(ctx, threadID, thread.Patch{
		Phase:            &previewing,
		LastPreviewRunID: &runID,
	}); err != nil {
		log.Printf(`{"level":"error","component":"orchestration","event":"thread_update_failed","thread_id":"%s","error":"%v"}`, threadID, err)
	}

	return runID, nil
}

// CompletePreviewRun records a finished preview run against the thread.
func (s *Service) CompletePreviewRun(ctx context.Context, threadID, versionID string) error {
	previewReady := thread.PhasePreviewReady
	_, err := s.Threads.Update(ctx, threadID, thread.Patch{
		Phase:            &previewReady,
		PreviewVersionID: &versionID,
	})
	if err != nil {
		return fmt.Errorf("failed to record preview completion: %w", err)
	}
	return nil
}
