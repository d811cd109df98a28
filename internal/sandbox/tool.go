package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexcore/agentcore/internal/agent"
	"github.com/nexcore/agentcore/pkg/models"
)

const toolName = "execute_code"

var inputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"language": {"type": "string", "enum": ["typescript"]},
		"code": {"type": "string"}
	},
	"required": ["language", "code"]
}`)

// Tool is the built-in execute_code agent.Tool. Its execute spawns a fresh
// sandboxed runner per call via Controller and exposes every
// CallerProgrammatic tool in registry to the runner's tools proxy.
type Tool struct {
	controller *Controller
	registry   *agent.ToolRegistry
}

// NewTool builds the execute_code tool. registry supplies both the set of
// programmatic tools advertised to the runner and the dispatch target for
// its tool_call proxy.
func NewTool(controller *Controller, registry *agent.ToolRegistry) *Tool {
	return &Tool{controller: controller, registry: registry}
}

func (t *Tool) Name() string        { return toolName }
func (t *Tool) Description() string {
	return "Executes model-generated TypeScript in a network- and filesystem-isolated sandbox. The code runs as the body of an async function(tools); declared programmatic tools are reachable only through the tools proxy."
}
func (t *Tool) InputSchema() json.RawMessage  { return inputSchema }
func (t *Tool) OutputSchema() json.RawMessage { return nil }

// AllowedCallers is direct only: a sandboxed runner cannot itself invoke
// execute_code, which would let executed code spawn further runners.
func (t *Tool) AllowedCallers() []agent.CallerKind {
	return []agent.CallerKind{agent.CallerDirect}
}

type executeCodeInput struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input executeCodeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("execute_code: invalid input: %w", err)
	}
	if input.Language != LanguageTypeScript {
		return nil, agent.NewError(agent.KindUnsupportedLang, fmt.Sprintf("unsupported language %q", input.Language), nil).WithTool(toolName, "")
	}

	defs := make([]ToolDefinition, 0, len(t.registry.ProgrammaticTools()))
	for _, tool := range t.registry.ProgrammaticTools() {
		defs = append(defs, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}

	result, err := t.controller.Execute(ctx, input.Language, input.Code, defs)
	if err != nil {
		return nil, agent.NewError(agent.KindToolExecution, err.Error(), err).WithTool(toolName, "")
	}
	if result.TimedOut {
		return nil, agent.NewError(agent.KindSandboxTimeout, "execute_code: sandbox timed out", nil).WithTool(toolName, "")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("execute_code: marshal result: %w", err)
	}
	return &agent.ToolResult{
		Content: []models.ContentBlock{models.Text(string(payload))},
		IsError: !result.Success,
	}, nil
}
