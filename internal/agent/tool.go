package agent

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/nexcore/agentcore/pkg/models"
)

// CallerKind distinguishes who is permitted to invoke a Tool: the loop
// itself (Direct) or sandboxed code running inside a code-execution task
// (Programmatic).
type CallerKind string

const (
	CallerDirect      CallerKind = "direct"
	CallerProgrammatic CallerKind = "programmatic"
)

// MaxToolNameLength bounds tool names the way the teacher's registry does.
const MaxToolNameLength = 256

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Tool is the uniform contract every callable capability implements,
// whether it is a local function, an MCP-bridged remote tool, or the
// sandbox's own execute_code tool.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	OutputSchema() json.RawMessage
	AllowedCallers() []CallerKind
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// ToolResult is what a Tool.Execute call returns. Content holds the
// normalized content blocks; a bare string result from a simple tool is
// coerced into a single text block by NormalizeToolResult.
type ToolResult struct {
	Content           []models.ContentBlock
	IsError           bool
	StructuredContent json.RawMessage
}

// NormalizeToolResult coerces loosely-typed tool output into a ToolResult.
// Accepts a ToolResult as-is, a string/[]byte as a single text block, or any
// other JSON-marshalable value as a structured text block.
func NormalizeToolResult(v any) *ToolResult {
	switch t := v.(type) {
	case *ToolResult:
		return t
	case ToolResult:
		return &t
	case string:
		return &ToolResult{Content: []models.ContentBlock{models.Text(t)}}
	case []byte:
		return &ToolResult{Content: []models.ContentBlock{models.Text(string(t))}}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return &ToolResult{Content: []models.ContentBlock{models.Text(err.Error())}, IsError: true}
		}
		return &ToolResult{Content: []models.ContentBlock{models.Text(string(data))}}
	}
}

// AllowsCaller reports whether kind may invoke a tool whose AllowedCallers
// returned allowed. A nil/empty allowed list defaults to direct-only.
func AllowsCaller(allowed []CallerKind, kind CallerKind) bool {
	if len(allowed) == 0 {
		return kind == CallerDirect
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}

// ValidToolName reports whether name satisfies the registry's naming rule.
func ValidToolName(name string) bool {
	return name != "" && len(name) <= MaxToolNameLength && toolNamePattern.MatchString(name)
}
