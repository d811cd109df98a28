package taskevent

import "github.com/nexcore/agentcore/pkg/models"

// Type discriminates the TaskEvent variants the agent loop emits.
type Type string

const (
	TypeText            Type = "text"
	TypeToolUse         Type = "tool_use"
	TypeToolUseInput    Type = "tool_use_input"
	TypeToolUseResult   Type = "tool_use_result"
	TypeToolUseError    Type = "tool_use_error"
	TypeMessage         Type = "message"
	TypeUsage           Type = "usage"
	TypeCompleted       Type = "completed"
	TypeCancelled       Type = "cancelled"
	TypeHistoryChanged  Type = "history_changed"
)

// Event is one entry in a task's event stream. Only the fields relevant to
// Type are populated.
type Event struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	// TypeText
	TextDelta string `json:"text_delta,omitempty"`

	// TypeToolUse / TypeToolUseInput
	ToolUseID    string `json:"tool_use_id,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	InputDelta   string `json:"input_delta,omitempty"`

	// TypeToolUseResult / TypeToolUseError
	ToolResult *models.ContentBlock `json:"tool_result,omitempty"`
	ToolError  string               `json:"tool_error,omitempty"`

	// TypeMessage
	Message *models.Message `json:"message,omitempty"`

	// TypeUsage
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`

	// TypeCancelled
	Reason string `json:"reason,omitempty"`
}

// New stamps a fresh Event with the next monotonic ID.
func New(typ Type) Event {
	return Event{ID: Next(), Type: typ}
}
