package agent

import (
	"encoding/json"
	"testing"
)

func TestCompileSchemaEmptyAcceptsAnything(t *testing.T) {
	schema, err := compileSchema("t", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schema != nil {
		t.Fatal("expected nil schema for empty input")
	}
	if err := validateInput(schema, json.RawMessage(`{"anything":"goes"}`)); err != nil {
		t.Errorf("expected nil schema to accept anything, got %v", err)
	}
}

func TestCompileSchemaValidatesInput(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
	schema, err := compileSchema("echo", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := validateInput(schema, json.RawMessage(`{"text":"hi"}`)); err != nil {
		t.Errorf("expected valid input to pass, got %v", err)
	}

	if err := validateInput(schema, json.RawMessage(`{"text":123}`)); err == nil {
		t.Error("expected invalid input (wrong type) to fail")
	}

	if err := validateInput(schema, json.RawMessage(`{}`)); err == nil {
		t.Error("expected missing required field to fail")
	}
}

func TestCompileSchemaMalformedFails(t *testing.T) {
	raw := json.RawMessage(`{"type": `)
	if _, err := compileSchema("bad", raw); err == nil {
		t.Fatal("expected error for malformed schema")
	}
}

func TestCompileSchemaCachesByText(t *testing.T) {
	raw := json.RawMessage(`{"type":"object"}`)
	s1, err := compileSchema("a", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := compileSchema("b", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1 != s2 {
		t.Error("expected identical schema text to reuse the cached compiled schema")
	}
}

func TestValidateInputRejectsMalformedJSON(t *testing.T) {
	raw := json.RawMessage(`{"type":"object"}`)
	schema, err := compileSchema("c", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateInput(schema, json.RawMessage(`{not json`)); err == nil {
		t.Error("expected malformed JSON input to fail validation")
	}
}
