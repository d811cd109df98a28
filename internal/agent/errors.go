package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for control-flow conditions raised by the loop and registry.
var (
	ErrTaskAlreadyRunning = errors.New("agent: task already running")
	ErrNoProvider         = errors.New("agent: no model provider configured")
	ErrToolNotFound       = errors.New("agent: tool not found")
	ErrDuplicateTool      = errors.New("agent: tool already registered")
	ErrInvalidToolName    = errors.New("agent: invalid tool name")
)

// ErrorKind classifies a Error for programmatic handling (errors.Is/As).
type ErrorKind string

const (
	KindInvalidToolInput  ErrorKind = "invalid_tool_input"
	KindToolExecution     ErrorKind = "tool_execution_error"
	KindToolAbort         ErrorKind = "tool_abort"
	KindProviderError     ErrorKind = "provider_error"
	KindMcpConnection     ErrorKind = "mcp_connection_error"
	KindMcpProtocol       ErrorKind = "mcp_protocol_error"
	KindSandboxTimeout    ErrorKind = "sandbox_timeout"
	KindUnsupportedLang   ErrorKind = "unsupported_language"
	KindOAuthRequired     ErrorKind = "oauth_required"
	KindTaskAlreadyActive ErrorKind = "task_already_running"
)

// Error is the structured error type returned by every core subsystem. It
// carries a Kind for classification plus whatever context is available at
// the point of failure.
type Error struct {
	Kind       ErrorKind
	Message    string
	ToolName   string
	ToolCallID string
	ServerID   string
	Cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified Error wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithTool annotates the error with the tool call it occurred during.
func (e *Error) WithTool(name, callID string) *Error {
	e.ToolName = name
	e.ToolCallID = callID
	return e
}

// WithServer annotates the error with the MCP server it occurred on.
func (e *Error) WithServer(id string) *Error {
	e.ServerID = id
	return e
}

// Is allows errors.Is(err, &Error{Kind: k}) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
