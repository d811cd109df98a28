package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nexcore/agentcore/pkg/models"
)

func newTestExecutor(t *testing.T, registry *ToolRegistry, cfg *ExecutorConfig) *Executor {
	t.Helper()
	return NewExecutor(registry, cfg)
}

func TestExecutorExecuteSuccess(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(&stubTool{name: "echo"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := newTestExecutor(t, r, nil)

	result := e.Execute(context.Background(), ToolCall{ID: "1", Name: "echo", Input: json.RawMessage(`{}`)})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
}

func TestExecutorExecuteAllPreservesOrder(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Register(&stubTool{name: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	e := newTestExecutor(t, r, nil)

	calls := []ToolCall{
		{ID: "1", Name: "a", Input: json.RawMessage(`{}`)},
		{ID: "2", Name: "b", Input: json.RawMessage(`{}`)},
		{ID: "3", Name: "c", Input: json.RawMessage(`{}`)},
	}
	results := e.ExecuteAll(context.Background(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.ToolCallID != calls[i].ID {
			t.Errorf("result %d: expected id %s, got %s", i, calls[i].ID, r.ToolCallID)
		}
	}
}

func TestExecutorRetriesUntilSuccess(t *testing.T) {
	r := NewToolRegistry()
	attempts := 0
	tool := &stubTool{name: "flaky", execFn: func(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient failure")
		}
		return &ToolResult{Content: []models.ContentBlock{models.Text("ok")}}, nil
	}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := newTestExecutor(t, r, &ExecutorConfig{
		MaxConcurrency: 1,
		DefaultTimeout: time.Second,
		DefaultRetries: 3,
		RetryBackoff:   time.Millisecond,
		MaxRetryBackoff: 10 * time.Millisecond,
	})

	result := e.Execute(context.Background(), ToolCall{ID: "1", Name: "flaky", Input: json.RawMessage(`{}`)})
	if result.Error != nil {
		t.Fatalf("expected eventual success, got error: %v", result.Error)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	r := NewToolRegistry()
	tool := &stubTool{name: "always-fails", execFn: func(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
		return nil, errors.New("permanent failure")
	}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := newTestExecutor(t, r, &ExecutorConfig{
		MaxConcurrency:  1,
		DefaultTimeout:  time.Second,
		DefaultRetries:  2,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 5 * time.Millisecond,
	})

	result := e.Execute(context.Background(), ToolCall{ID: "1", Name: "always-fails", Input: json.RawMessage(`{}`)})
	if result.Error == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", result.Attempts)
	}
}

func TestExecutorTimeout(t *testing.T) {
	r := NewToolRegistry()
	tool := &stubTool{name: "slow", execFn: func(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
		select {
		case <-time.After(time.Second):
			return &ToolResult{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := newTestExecutor(t, r, &ExecutorConfig{
		MaxConcurrency: 1,
		DefaultTimeout: 20 * time.Millisecond,
		DefaultRetries: 0,
	})

	result := e.Execute(context.Background(), ToolCall{ID: "1", Name: "slow", Input: json.RawMessage(`{}`)})
	if result.Error == nil {
		t.Fatal("expected a timeout error")
	}
	if !IsKind(result.Error, KindSandboxTimeout) {
		t.Errorf("expected KindSandboxTimeout, got %v", result.Error)
	}
}

func TestExecutorRecoversFromPanic(t *testing.T) {
	r := NewToolRegistry()
	tool := &stubTool{name: "panics", execFn: func(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
		panic("boom")
	}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := newTestExecutor(t, r, nil)
	result := e.Execute(context.Background(), ToolCall{ID: "1", Name: "panics", Input: json.RawMessage(`{}`)})
	if result.Error == nil {
		t.Fatal("expected panic to be converted into an error result")
	}
}

func TestExecutorPerToolConfigOverridesDefault(t *testing.T) {
	r := NewToolRegistry()
	tool := &stubTool{name: "slow", execFn: func(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return &ToolResult{Content: []models.ContentBlock{models.Text("done")}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := newTestExecutor(t, r, &ExecutorConfig{MaxConcurrency: 1, DefaultTimeout: 5 * time.Millisecond})
	e.ConfigureTool("slow", &ToolConfig{Timeout: 200 * time.Millisecond})

	result := e.Execute(context.Background(), ToolCall{ID: "1", Name: "slow", Input: json.RawMessage(`{}`)})
	if result.Error != nil {
		t.Fatalf("expected per-tool timeout override to allow completion, got %v", result.Error)
	}
}

func TestAnyErrors(t *testing.T) {
	ok := []*ExecutionResult{{ToolCallID: "1"}, {ToolCallID: "2"}}
	if AnyErrors(ok) {
		t.Error("expected no errors")
	}
	withErr := []*ExecutionResult{{ToolCallID: "1"}, {ToolCallID: "2", Error: errors.New("fail")}}
	if !AnyErrors(withErr) {
		t.Error("expected an error to be detected")
	}
}
