package openai

import (
	"encoding/json"
	"testing"

	"github.com/nexcore/agentcore/internal/agent"
	"github.com/nexcore/agentcore/pkg/models"
)

func TestConvertMessagesIncludesSystemPrompt(t *testing.T) {
	result, err := convertMessages("be concise", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Role != "system" || result[0].Content != "be concise" {
		t.Fatalf("expected a leading system message, got %+v", result)
	}
}

func TestConvertMessagesAssistantToolUseBecomesToolCall(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleAssistant, Content: []models.ContentBlock{
			models.Text("let me check"),
			models.ToolUse("call1", "search", json.RawMessage(`{"q":"go"}`)),
		}},
	}
	result, err := convertMessages("", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
	msg := result[0]
	if msg.Content != "let me check" {
		t.Errorf("expected text to be preserved, got %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "call1" || msg.ToolCalls[0].Function.Name != "search" {
		t.Fatalf("unexpected tool calls: %+v", msg.ToolCalls)
	}
}

func TestConvertMessagesToolResultBecomesSeparateToolMessage(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{
			models.ToolResultBlock("call1", []models.ContentBlock{models.Text("42")}, false, nil),
		}},
	}
	result, err := convertMessages("", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Role != "tool" || result[0].ToolCallID != "call1" || result[0].Content != "42" {
		t.Fatalf("unexpected tool-result conversion: %+v", result)
	}
}

func TestConvertMessagesUserImageBecomesMultiContent(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{
			models.Text("what is this?"),
			models.Image("image/png", "YWJj"),
		}},
	}
	result, err := convertMessages("", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || len(result[0].MultiContent) != 2 {
		t.Fatalf("expected a single multi-content user message, got %+v", result)
	}
}

func TestConvertMessagesUnsupportedRole(t *testing.T) {
	messages := []models.Message{{Role: models.Role("system-ish")}}
	if _, err := convertMessages("", messages); err == nil {
		t.Fatal("expected an error for an unsupported role")
	}
}

func TestConvertToolsBuildsFunctionDefinition(t *testing.T) {
	tools := []agent.CompletionTool{
		{Name: "search", Description: "search the web", InputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)},
	}
	result := convertTools(tools)
	if len(result) != 1 || result[0].Function.Name != "search" {
		t.Fatalf("unexpected tool conversion: %+v", result)
	}
}

func TestConvertToolsFallsBackToEmptyObjectSchema(t *testing.T) {
	tools := []agent.CompletionTool{{Name: "noop"}}
	result := convertTools(tools)
	schema, ok := result[0].Function.Parameters.(map[string]any)
	if !ok || schema["type"] != "object" {
		t.Fatalf("expected a default object schema, got %+v", result[0].Function.Parameters)
	}
}

func TestRenderToolResultTextConcatenatesTextBlocks(t *testing.T) {
	blocks := []models.ContentBlock{models.Text("a"), models.Text("b")}
	if got := renderToolResultText(blocks); got != "ab" {
		t.Errorf("expected ab, got %s", got)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	p, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model == "" {
		t.Error("expected a default model to be set")
	}
}
