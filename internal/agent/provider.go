package agent

import (
	"context"

	"github.com/nexcore/agentcore/pkg/models"
)

// StreamEventType discriminates the chunks a ModelProvider emits while
// streaming a single assistant turn.
type StreamEventType string

const (
	StreamText         StreamEventType = "text"
	StreamToolUse      StreamEventType = "tool_use"
	StreamToolUseInput StreamEventType = "tool_use_input"
	StreamMessage      StreamEventType = "message"
)

// StreamEvent is one chunk of a streamed assistant turn.
type StreamEvent struct {
	Type StreamEventType

	// StreamText
	TextDelta string

	// StreamToolUse: a new tool call has started.
	ToolUseID string
	ToolName  string

	// StreamToolUseInput: an incremental fragment of a tool call's JSON input.
	InputDelta string

	// StreamMessage: the turn is complete; Message holds the full assistant
	// message built from the preceding chunks.
	Message *models.Message

	InputTokens  int
	OutputTokens int
}

// CompletionTool is the minimal tool description a ModelProvider needs to
// advertise to the model — name, description, and input schema only.
type CompletionTool struct {
	Name        string
	Description string
	InputSchema []byte
}

// StreamHandle is returned by ModelProvider.StreamChat. Events yields each
// StreamEvent as it arrives; the channel closes when the turn completes or
// the context is cancelled. FinalMessage blocks until the stream completes
// and returns the fully assembled assistant message, or the error that
// ended the stream early.
type StreamHandle interface {
	Events() <-chan StreamEvent
	FinalMessage() (*models.Message, error)
}

// ModelProvider is the seam between the agent loop and an LLM backend. The
// loop drives it once per turn; how the provider talks to its backend (SSE,
// websocket, polling) is entirely its own concern.
type ModelProvider interface {
	// StreamChat starts streaming one assistant turn given the system
	// prompt, full message history, and the direct tools currently visible
	// to the loop. Cancelling ctx must stop the underlying request and
	// close the returned handle's event channel.
	StreamChat(ctx context.Context, systemPrompt string, messages []models.Message, tools []CompletionTool, maxTokens int) (StreamHandle, error)
}
