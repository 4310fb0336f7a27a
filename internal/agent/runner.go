package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds the tool-use loop for a single turn.
const DefaultMaxSteps = 10

// Step records a single tool invocation performed during a turn.
type Step struct {
	Tool   string                 `json:"tool"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Output map[string]interface{} `json:"output,omitempty"`
}

// RawResult is what an Agent implementation hands back. Implementations
// differ in which of Text and OutputText they fill; normalization in
// RunNetworkToText hides that from callers.
type RawResult struct {
	Text       string
	OutputText string
	Steps      []Step
}

// GenerateRequest carries one user turn into an Agent.
type GenerateRequest struct {
	Message  string
	ThreadID string
	Context  map[string]interface{}
	MaxSteps int
}

// Agent produces a response for one conversational turn, calling tools
// as it goes. Implementations must respect MaxSteps.
type Agent interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*RawResult, error)
}

// RunOptions configures a single RunNetworkToText call.
type RunOptions struct {
	Agent    Agent
	Message  string
	ThreadID string
	Context  map[string]interface{}
	// MaxSteps defaults to DefaultMaxSteps when zero.
	MaxSteps int
	// ExpectTools, when non-empty, lists tool names the turn is expected
	// to have invoked at least one of. A miss is logged and flagged on
	// the result but never fails the turn.
	ExpectTools []string
}

// Result is the normalized outcome of a turn. Text is always present
// (possibly empty, never whitespace-padded).
type Result struct {
	Text              string `json:"text"`
	Steps             []Step `json:"steps"`
	SelectionComplete bool   `json:"selection_complete"`
}

// RunNetworkToText drives an agent through one turn and normalizes the
// heterogeneous result shapes agent implementations produce into a
// plain {text, steps} pair.
func RunNetworkToText(ctx context.Context, opts RunOptions) (*Result, error) {
	if opts.Agent == nil {
		return nil, fmt.Errorf("run requires an agent")
	}

	tracer := otel.Tracer("agent-runner")
	ctx, span := tracer.Start(ctx, "agent.run_network_to_text",
		trace.WithAttributes(
			attribute.String("agent", opts.Agent.Name()),
			attribute.String("thread_id", opts.ThreadID),
		))
	defer span.End()

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	raw, err := opts.Agent.Generate(ctx, GenerateRequest{
		Message:  opts.Message,
		ThreadID: opts.ThreadID,
		Context:  opts.Context,
		MaxSteps: maxSteps,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("agent %s turn failed: %w", opts.Agent.Name(), err)
	}

	result := &Result{
		Text:              normalizeText(raw),
		Steps:             raw.Steps,
		SelectionComplete: true,
	}
	if result.Steps == nil {
		result.Steps = []Step{}
	}

	if len(opts.ExpectTools) > 0 && !invokedAny(result.Steps, opts.ExpectTools) {
		result.SelectionComplete = false
		expected, _ := json.Marshal(opts.ExpectTools)
		log.Printf(`{"level":"warn","component":"agent-runner","event":"selection_incomplete","thread_id":"%s","expected_tools":%s,"steps":%d}`,
			opts.ThreadID, expected, len(result.Steps))
	}

	span.SetAttributes(
		attribute.Int("steps", len(result.Steps)),
		attribute.Bool("selection_complete", result.SelectionComplete),
		attribute.Int("text_length", len(result.Text)),
	)
	return result, nil
}

// normalizeText picks the first usable text field and trims it. Agents
// that produced only tool calls yield an empty string rather than nil
// or whitespace.
func normalizeText(raw *RawResult) string {
	if text := strings.TrimSpace(raw.Text); text != "" {
		return text
	}
	return strings.TrimSpace(raw.OutputText)
}

func invokedAny(steps []Step, names []string) bool {
	for _, step := range steps {
		for _, name := range names {
			if step.Tool == name {
				return true
			}
		}
	}
	return false
}
