package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/glasspane/interface-orchestrator/internal/tools"
)

const (
	defaultClaudeModel = "claude-sonnet-4-5"
	defaultMaxTokens   = 8192
)

// ClaudeAgent runs conversational turns against the Anthropic Messages
// API with the registered tools exposed to the model.
type ClaudeAgent struct {
	client    anthropic.Client
	model     anthropic.Model
	system    string
	registry  *tools.Registry
	maxTokens int64
}

// NewClaudeAgent builds an agent from ANTHROPIC_API_KEY and the
// optional ANTHROPIC_MODEL override.
func NewClaudeAgent(system string, registry *tools.Registry) (*ClaudeAgent, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = defaultClaudeModel
	}

	return &ClaudeAgent{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		system:    system,
		registry:  registry,
		maxTokens: defaultMaxTokens,
	}, nil
}

func (a *ClaudeAgent) Name() string {
	return "claude-builder"
}

// Generate drives the tool-use loop for one turn. Each tool invocation
// consumes one step from req.MaxSteps; when the budget runs out the
// accumulated text and steps are returned as-is.
func (a *ClaudeAgent) Generate(ctx context.Context, req GenerateRequest) (*RawResult, error) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(a.composeMessage(req))),
	}

	var (
		steps    []Step
		textSink strings.Builder
	)

	for len(steps) < maxSteps {
		msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: a.system}},
			Messages:  messages,
			Tools:     a.toolParams(),
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic messages call failed: %w", err)
		}

		var (
			toolUses        []anthropic.ToolUseBlock
			assistantBlocks []anthropic.ContentBlockParamUnion
		)
		for _, block := range msg.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				textSink.WriteString(b.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(b.Text))
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, b)
				assistantBlocks = append(assistantBlocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: b.Input,
					},
				})
			}
		}

		if len(toolUses) == 0 || msg.StopReason != anthropic.StopReasonToolUse {
			return &RawResult{Text: textSink.String(), Steps: steps}, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))

		var resultBlocks []anthropic.ContentBlockParamUnion
		for _, use := range toolUses {
			input, err := decodeToolInput(use)
			if err != nil {
				return nil, err
			}

			output, err := CallToolByName(ctx, a.registry, use.Name, input)
			if err != nil {
				// Validation failures surface to the turn handler rather
				// than being retried silently inside the loop.
				return nil, err
			}

			steps = append(steps, Step{Tool: use.Name, Input: input, Output: output})

			encoded, err := json.Marshal(output)
			if err != nil {
				return nil, fmt.Errorf("failed to encode result for tool %s: %w", use.Name, err)
			}
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(use.ID, string(encoded), false))
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	log.Printf(`{"level":"warn","component":"claude-agent","event":"step_budget_exhausted","steps":%d}`, len(steps))
	return &RawResult{Text: textSink.String(), Steps: steps}, nil
}

// composeMessage prepends any structured turn context to the user
// message so the model sees interface and thread identifiers.
func (a *ClaudeAgent) composeMessage(req GenerateRequest) string {
	if len(req.Context) == 0 {
		return req.Message
	}
	encoded, err := json.Marshal(req.Context)
	if err != nil {
		return req.Message
	}
	return fmt.Sprintf("<turn_context>%s</turn_context>\n\n%s", encoded, req.Message)
}

func (a *ClaudeAgent) toolParams() []anthropic.ToolUnionParam {
	registered := a.registry.List()
	params := make([]anthropic.ToolUnionParam, 0, len(registered))
	for _, tool := range registered {
		schema := tool.InputSchema()
		properties, _ := schema["properties"].(map[string]interface{})
		var required []string
		if rawRequired, ok := schema["required"].([]string); ok {
			required = rawRequired
		} else if rawList, ok := schema["required"].([]interface{}); ok {
			for _, raw := range rawList {
				if s, ok := raw.(string); ok {
					required = append(required, s)
				}
			}
		}

		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name(),
				Description: anthropic.String(tool.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       "object",
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return params
}

func decodeToolInput(use anthropic.ToolUseBlock) (map[string]interface{}, error) {
	raw, err := use.Input.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to read input for tool %s: %w", use.Name, err)
	}
	input := make(map[string]interface{})
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("tool %s input is not an object: %w", use.Name, err)
	}
	return input, nil
}
