package models

import "testing"

func TestValidateAlternationNoViolation(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{Text("hi")}},
		{Role: RoleAssistant, Content: []ContentBlock{Text("hello")}},
		{Role: RoleUser, Content: []ContentBlock{Text("bye")}},
	}
	if idx := ValidateAlternation(messages); idx != -1 {
		t.Fatalf("expected -1, got %d", idx)
	}
}

func TestValidateAlternationDetectsAdjacentSameRole(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{Text("hi")}},
		{Role: RoleUser, Content: []ContentBlock{Text("again")}},
	}
	if idx := ValidateAlternation(messages); idx != 1 {
		t.Fatalf("expected violation at index 1, got %d", idx)
	}
}

func TestValidateToolPairingMatches(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: []ContentBlock{
			ToolUse("id1", "echo", nil),
			ToolUse("id2", "grep", nil),
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock("id1", []ContentBlock{Text("a")}, false, nil),
			ToolResultBlock("id2", []ContentBlock{Text("b")}, false, nil),
		}},
	}
	if err := ValidateToolPairing(messages); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateToolPairingCountMismatch(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: []ContentBlock{
			ToolUse("id1", "echo", nil),
			ToolUse("id2", "grep", nil),
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock("id1", []ContentBlock{Text("a")}, false, nil),
		}},
	}
	err := ValidateToolPairing(messages)
	if err == nil {
		t.Fatal("expected pairing error")
	}
	var pe *PairingError
	if pe, _ = err.(*PairingError); pe == nil {
		t.Fatalf("expected *PairingError, got %T", err)
	}
}

func TestValidateToolPairingOrderMismatch(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: []ContentBlock{
			ToolUse("id1", "echo", nil),
			ToolUse("id2", "grep", nil),
		}},
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock("id2", []ContentBlock{Text("b")}, false, nil),
			ToolResultBlock("id1", []ContentBlock{Text("a")}, false, nil),
		}},
	}
	if err := ValidateToolPairing(messages); err == nil {
		t.Fatal("expected order-mismatch error")
	}
}

func TestValidateToolPairingIgnoresNonToolTurns(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: []ContentBlock{Text("hi")}},
		{Role: RoleAssistant, Content: []ContentBlock{Text("hello")}},
	}
	if err := ValidateToolPairing(messages); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestToolUseBlocksAndResultBlocks(t *testing.T) {
	msg := Message{Content: []ContentBlock{
		Text("hi"),
		ToolUse("id1", "echo", nil),
		Image("image/png", "abc"),
	}}
	uses := msg.ToolUseBlocks()
	if len(uses) != 1 || uses[0].ToolUseID != "id1" {
		t.Fatalf("unexpected tool_use blocks: %+v", uses)
	}

	resultMsg := Message{Content: []ContentBlock{ToolResultBlock("id1", nil, false, nil)}}
	results := resultMsg.ToolResultBlocks()
	if len(results) != 1 || results[0].ToolUseID != "id1" {
		t.Fatalf("unexpected tool_result blocks: %+v", results)
	}
}

func TestTextContentConcatenatesInOrder(t *testing.T) {
	msg := Message{Content: []ContentBlock{Text("foo"), Text(" bar"), Image("image/png", "x")}}
	if got := msg.TextContent(); got != "foo bar" {
		t.Fatalf("expected %q, got %q", "foo bar", got)
	}
}

func TestPairingErrorMessage(t *testing.T) {
	err := &PairingError{Index: 3, Reason: "mismatch"}
	want := "tool_use/tool_result pairing error at message 3: mismatch"
	if got := err.Error(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
