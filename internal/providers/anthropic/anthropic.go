// Package anthropic implements agent.ModelProvider against Anthropic's
// Messages streaming API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nexcore/agentcore/internal/agent"
	"github.com/nexcore/agentcore/pkg/models"
)

// Config configures the Anthropic provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements agent.ModelProvider for Claude models.
type Provider struct {
	client anthropic.Client
	model  string
}

// New creates a Provider. cfg.Model is the default used since
// ModelProvider.StreamChat carries no per-call model override.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &Provider{client: anthropic.NewClient(opts...), model: model}, nil
}

func (p *Provider) StreamChat(ctx context.Context, systemPrompt string, messages []models.Message, tools []agent.CompletionTool, maxTokens int) (agent.StreamHandle, error) {
	params, err := p.buildParams(systemPrompt, messages, tools, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	h := &streamHandle{events: make(chan agent.StreamEvent, 16), done: make(chan struct{})}
	go h.consume(stream)
	return h, nil
}

func (p *Provider) buildParams(systemPrompt string, messages []models.Message, tools []agent.CompletionTool, maxTokens int) (anthropic.MessageNewParams, error) {
	msgParams, err := convertMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  msgParams,
		MaxTokens: int64(maxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		toolParams, err := convertTools(tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = toolParams
	}
	return params, nil
}

func convertTools(tools []agent.CompletionTool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid input schema: %w", t.Name, err)
			}
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("tool %s: missing tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case models.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case models.BlockImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(b.MediaType, b.Base64Data))
			case models.BlockToolUse:
				var input any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("tool_use %s: invalid input: %w", b.ToolUseID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, input, b.Name))
			case models.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, renderToolResultText(b.ToolResultContent), b.IsError))
			default:
				return nil, fmt.Errorf("unsupported content block type %q", b.Type)
			}
		}
		if m.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
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

// streamHandle adapts the Anthropic SSE stream to agent.StreamHandle,
// reassembling tool_use input fragments and publishing a synthetic
// StreamMessage event once the stream ends.
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

func (h *streamHandle) consume(stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) {
	defer close(h.events)
	defer close(h.done)

	var textBuf strings.Builder
	var blocks []models.ContentBlock
	var curToolID, curToolName string
	var curToolInput strings.Builder
	var inputTokens, outputTokens int

	flushText := func() {
		if textBuf.Len() > 0 {
			blocks = append(blocks, models.Text(textBuf.String()))
			textBuf.Reset()
		}
	}
	flushTool := func() {
		if curToolID != "" {
			blocks = append(blocks, models.ToolUse(curToolID, curToolName, json.RawMessage(curToolInput.String())))
			curToolID, curToolName = "", ""
			curToolInput.Reset()
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = int(ms.Message.Usage.InputTokens)
		case "content_block_start":
			cbs := event.AsContentBlockStart()
			if cbs.ContentBlock.Type == "tool_use" {
				flushText()
				tu := cbs.ContentBlock.AsToolUse()
				curToolID, curToolName = tu.ID, tu.Name
				h.events <- agent.StreamEvent{Type: agent.StreamToolUse, ToolUseID: curToolID, ToolName: curToolName}
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				textBuf.WriteString(delta.Text)
				h.events <- agent.StreamEvent{Type: agent.StreamText, TextDelta: delta.Text}
			case "input_json_delta":
				curToolInput.WriteString(delta.PartialJSON)
				h.events <- agent.StreamEvent{Type: agent.StreamToolUseInput, ToolUseID: curToolID, InputDelta: delta.PartialJSON}
			}
		case "content_block_stop":
			flushTool()
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		}
	}
	flushText()
	flushTool()

	h.mu.Lock()
	if err := stream.Err(); err != nil {
		h.finalErr = fmt.Errorf("anthropic: stream: %w", err)
	} else {
		msg := &models.Message{Role: models.RoleAssistant, Content: blocks}
		h.final = msg
		h.events <- agent.StreamEvent{Type: agent.StreamMessage, Message: msg, InputTokens: inputTokens, OutputTokens: outputTokens}
	}
	h.mu.Unlock()
}
