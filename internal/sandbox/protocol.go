// Package sandbox implements the execute_code tool: a host controller that
// spawns a single-use runner subprocess per call, speaking a newline-
// delimited JSON protocol over stdin/stdout, and proxies the runner's
// tool_call requests back through an agent.ToolRegistry with no further
// ambient authority granted to the runner.
package sandbox

import "encoding/json"

// Language is the scripting language a runner executes. Only TypeScript is
// supported: the execute_code tool rejects any other value with
// agent.KindUnsupportedLang, and Controller.Execute with a plain error,
// before a runner is ever spawned.
type Language string

const LanguageTypeScript Language = "typescript"

// ToolDefinition describes one tool the runner's `tools` proxy may call.
// Only tools listed here are reachable from inside the sandbox — this is
// the sandbox's entire capability boundary.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// downstreamType discriminates controller->runner messages.
type downstreamType string

const (
	downstreamExecute      downstreamType = "execute"
	downstreamToolResponse downstreamType = "tool_response"
)

// downstream is a controller->runner protocol message.
type downstream struct {
	Type downstreamType `json:"type"`

	// execute
	Language        Language         `json:"language,omitempty"`
	Code            string           `json:"code,omitempty"`
	ToolDefinitions []ToolDefinition `json:"toolDefinitions,omitempty"`

	// tool_response
	CallID string          `json:"callId,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// upstreamType discriminates runner->controller messages.
type upstreamType string

const (
	upstreamToolCall upstreamType = "tool_call"
	upstreamResult   upstreamType = "result"
)

// upstream is a runner->controller protocol message.
type upstream struct {
	Type upstreamType `json:"type"`

	// tool_call
	CallID   string          `json:"callId,omitempty"`
	ToolName string          `json:"toolName,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`

	// result
	Success bool            `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	ResErr  string          `json:"error,omitempty"`
	Logs    []string        `json:"logs,omitempty"`
	TimedOut bool           `json:"timedOut,omitempty"`
}

// Result is the outcome of one execute_code call.
type Result struct {
	Success  bool
	Data     json.RawMessage
	Error    string
	Logs     []string
	TimedOut bool
}
