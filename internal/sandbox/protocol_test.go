package sandbox

import (
	"encoding/json"
	"testing"
)

func TestDownstreamExecuteRoundTrip(t *testing.T) {
	msg := downstream{
		Type:     downstreamExecute,
		Language: LanguageTypeScript,
		Code:     "console.log(1)",
		ToolDefinitions: []ToolDefinition{
			{Name: "echo", Description: "echoes input", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded downstream
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Type != downstreamExecute || decoded.Language != LanguageTypeScript || decoded.Code != msg.Code {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if len(decoded.ToolDefinitions) != 1 || decoded.ToolDefinitions[0].Name != "echo" {
		t.Errorf("unexpected tool definitions: %+v", decoded.ToolDefinitions)
	}
}

func TestDownstreamToolResponseRoundTrip(t *testing.T) {
	msg := downstream{Type: downstreamToolResponse, CallID: "c1", Result: json.RawMessage(`{"ok":true}`)}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded downstream
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.CallID != "c1" || string(decoded.Result) != `{"ok":true}` {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestUpstreamToolCallUnmarshal(t *testing.T) {
	raw := `{"type":"tool_call","callId":"c1","toolName":"search","args":{"q":"go"}}`
	var msg upstream
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != upstreamToolCall || msg.CallID != "c1" || msg.ToolName != "search" {
		t.Errorf("unexpected decode: %+v", msg)
	}
}

func TestUpstreamResultUnmarshal(t *testing.T) {
	raw := `{"type":"result","success":false,"error":"boom","logs":["a","b"],"timedOut":false}`
	var msg upstream
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Success || msg.ResErr != "boom" || len(msg.Logs) != 2 {
		t.Errorf("unexpected decode: %+v", msg)
	}
}

func TestUpstreamResultTimedOut(t *testing.T) {
	raw := `{"type":"result","success":false,"timedOut":true}`
	var msg upstream
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.TimedOut {
		t.Error("expected timedOut to decode true")
	}
}
