// Package openai implements agent.ModelProvider against OpenAI's chat
// completions streaming API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexcore/agentcore/internal/agent"
	"github.com/nexcore/agentcore/pkg/models"
)

// Config configures the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements agent.ModelProvider against GPT models. OpenAI's
// function-calling protocol has no direct tool_use/tool_result content
// block equivalent: assistant tool calls live on the message itself and
// results are separate role:"tool" messages, so conversion to and from
// models.Message happens entirely in this file.
type Provider struct {
	client *openai.Client
	model  string
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &Provider{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (p *Provider) StreamChat(ctx context.Context, systemPrompt string, messages []models.Message, tools []agent.CompletionTool, maxTokens int) (agent.StreamHandle, error) {
	oaiMessages, err := convertMessages(systemPrompt, messages)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: oaiMessages,
		Stream:   true,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: create stream: %w", err)
	}

	h := &streamHandle{events: make(chan agent.StreamEvent, 16), done: make(chan struct{})}
	go h.consume(stream)
	return h, nil
}

func convertTools(tools []agent.CompletionTool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		schema := map[string]any{"type": "object", "properties": map[string]any{}}
		if len(t.InputSchema) > 0 {
			_ = json.Unmarshal(t.InputSchema, &schema)
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

// convertMessages flattens the ContentBlock model into OpenAI's
// role-tagged message list: a tool_use block contributes to the owning
// assistant message's ToolCalls, and each tool_result block becomes its
// own role:"tool" message.
func convertMessages(systemPrompt string, messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			var text strings.Builder
			for _, b := range m.Content {
				switch b.Type {
				case models.BlockText:
					text.WriteString(b.Text)
				case models.BlockToolUse:
					msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
						ID:   b.ToolUseID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.Name,
							Arguments: string(b.Input),
						},
					})
				}
			}
			msg.Content = text.String()
			result = append(result, msg)

		case models.RoleUser:
			var text strings.Builder
			var imageParts []openai.ChatMessagePart
			for _, b := range m.Content {
				switch b.Type {
				case models.BlockText:
					text.WriteString(b.Text)
				case models.BlockImage:
					imageParts = append(imageParts, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: fmt.Sprintf("data:%s;base64,%s", b.MediaType, b.Base64Data), Detail: openai.ImageURLDetailAuto},
					})
				case models.BlockToolResult:
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    renderToolResultText(b.ToolResultContent),
						ToolCallID: b.ToolUseID,
					})
				}
			}
			if len(imageParts) > 0 {
				parts := imageParts
				if text.Len() > 0 {
					parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text.String()}}, parts...)
				}
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
			} else if text.Len() > 0 {
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text.String()})
			}

		default:
			return nil, fmt.Errorf("unsupported role %q", m.Role)
		}
	}
	return result, nil
}

func renderToolResultText(blocks []models.ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == models.BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

type streamHandle struct {
	events chan agent.StreamEvent
	done   chan struct{}

	mu       sync.Mutex
	final    *models.Message
	finalErr error
}

func (h *streamHandle) Events() <-chan agent.StreamEvent { return h.events }

func (h *streamHandle) FinalMessage() (*models.Message, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.final, h.finalErr
}

// pendingToolCall accumulates one tool call's fields across delta chunks,
// which OpenAI may split arbitrarily (including mid-JSON-token).
type pendingToolCall struct {
	id, name string
	args     strings.Builder
}

func (h *streamHandle) consume(stream *openai.ChatCompletionStream) {
	defer close(h.events)
	defer close(h.done)
	defer stream.Close()

	var textBuf strings.Builder
	var blocks []models.ContentBlock
	calls := map[int]*pendingToolCall{}
	var order []int

	flushText := func() {
		if textBuf.Len() > 0 {
			blocks = append(blocks, models.Text(textBuf.String()))
			textBuf.Reset()
		}
	}
	flushCalls := func() {
		for _, idx := range order {
			tc := calls[idx]
			if tc == nil || tc.id == "" || tc.name == "" {
				continue
			}
			blocks = append(blocks, models.ToolUse(tc.id, tc.name, json.RawMessage(tc.args.String())))
		}
		calls = map[int]*pendingToolCall{}
		order = nil
	}

	var finalErr error
	for {
		resp, err := stream.Recv()
		if err != nil {
			if err != io.EOF {
				finalErr = fmt.Errorf("openai: stream: %w", err)
			}
			break
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			textBuf.WriteString(delta.Content)
			h.events <- agent.StreamEvent{Type: agent.StreamText, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pending, ok := calls[index]
			if !ok {
				pending = &pendingToolCall{}
				calls[index] = pending
				order = append(order, index)
			}
			if tc.ID != "" {
				pending.id = tc.ID
			}
			if tc.Function.Name != "" {
				pending.name = tc.Function.Name
				if pending.id != "" {
					h.events <- agent.StreamEvent{Type: agent.StreamToolUse, ToolUseID: pending.id, ToolName: pending.name}
				}
			}
			if tc.Function.Arguments != "" {
				pending.args.WriteString(tc.Function.Arguments)
				h.events <- agent.StreamEvent{Type: agent.StreamToolUseInput, ToolUseID: pending.id, InputDelta: tc.Function.Arguments}
			}
		}

		if choice.FinishReason != "" {
			flushText()
			flushCalls()
		}
	}
	flushText()
	flushCalls()

	h.mu.Lock()
	if finalErr != nil {
		h.finalErr = finalErr
	} else {
		msg := &models.Message{Role: models.RoleAssistant, Content: blocks}
		h.final = msg
		h.events <- agent.StreamEvent{Type: agent.StreamMessage, Message: msg}
	}
	h.mu.Unlock()
}
