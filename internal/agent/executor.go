package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nexcore/agentcore/internal/backoff"
)

// ExecutorConfig configures the parallel tool executor: concurrency limits,
// timeouts, and retry strategy. The spec's tool phase does not call for
// automatic retries, so DefaultRetries is 0 — a caller opts in per-tool via
// ConfigureTool.
type ExecutorConfig struct {
	MaxConcurrency  int
	DefaultTimeout  time.Duration
	DefaultRetries  int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns the baseline executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:  5,
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  0,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// ToolConfig holds per-tool overrides for timeout, retries, and backoff.
type ToolConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// ToolCall is one tool invocation the loop asks the executor to run,
// extracted from an assistant message's tool_use blocks.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Executor runs tool calls against a ToolRegistry with concurrency limiting,
// optional per-tool retry, and panic isolation.
type Executor struct {
	registry   *ToolRegistry
	config     *ExecutorConfig
	toolConfig map[string]*ToolConfig
	mu         sync.RWMutex
	sem        chan struct{}
	metrics    *executorMetrics
	collector  *Metrics
}

// WithMetrics attaches a Prometheus collector that observes every execution
// result. Optional; nil-safe if never called.
func (e *Executor) WithMetrics(m *Metrics) *Executor {
	e.collector = m
	return e
}

type executorMetrics struct {
	mu              sync.Mutex
	totalExecutions int64
	totalRetries    int64
	totalFailures   int64
	totalTimeouts   int64
	totalPanics     int64
}

// NewExecutor builds an Executor over registry. A nil config uses
// DefaultExecutorConfig.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		registry:   registry,
		config:     config,
		toolConfig: make(map[string]*ToolConfig),
		sem:        make(chan struct{}, config.MaxConcurrency),
		metrics:    &executorMetrics{},
	}
}

// ConfigureTool sets a per-tool override.
func (e *Executor) ConfigureTool(name string, config *ToolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolConfig[name] = config
}

func (e *Executor) getToolConfig(name string) *ToolConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.toolConfig[name]
}

// ExecutionResult is the outcome of one tool call.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     *ToolResult
	Error      error
	Duration   time.Duration
	Attempts   int
}

// ExecuteAll runs every call concurrently (bounded by MaxConcurrency) and
// returns results in the same order as calls, preserving document order for
// the loop's subsequent tool_result synthesis regardless of completion
// order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]*ExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs a single tool call, applying per-tool timeout and retry
// configuration and recovering from panics inside the tool itself.
func (e *Executor) Execute(ctx context.Context, call ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{ToolCallID: call.ID, ToolName: call.Name}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Error = NewError(KindToolAbort, "context cancelled before execution", ctx.Err()).WithTool(call.Name, call.ID)
		result.Duration = time.Since(start)
		return result
	}

	tc := e.getToolConfig(call.Name)
	timeout := e.config.DefaultTimeout
	maxRetries := e.config.DefaultRetries
	backoffBase := e.config.RetryBackoff
	if tc != nil {
		if tc.Timeout > 0 {
			timeout = tc.Timeout
		}
		if tc.Retries >= 0 {
			maxRetries = tc.Retries
		}
		if tc.RetryBackoff > 0 {
			backoffBase = tc.RetryBackoff
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		execResult, execErr := e.executeWithTimeout(ctx, call, timeout)
		if execErr == nil {
			result.Result = execResult
			result.Duration = time.Since(start)
			e.metrics.mu.Lock()
			e.metrics.totalExecutions++
			if attempt > 0 {
				e.metrics.totalRetries += int64(attempt)
			}
			e.metrics.mu.Unlock()
			if e.collector != nil {
				e.collector.Observe(result)
			}
			return result
		}

		lastErr = execErr
		if ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		policy := backoff.BackoffPolicy{
			InitialMs: float64(backoffBase.Milliseconds()),
			MaxMs:     float64(e.config.MaxRetryBackoff.Milliseconds()),
			Factor:    2,
			Jitter:    0.1,
		}
		sleep := backoff.ComputeBackoff(policy, attempt+1)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			lastErr = NewError(KindToolAbort, "context cancelled during retry backoff", ctx.Err()).WithTool(call.Name, call.ID)
		}
	}

	result.Error = lastErr
	result.Duration = time.Since(start)

	e.metrics.mu.Lock()
	e.metrics.totalExecutions++
	e.metrics.totalFailures++
	if IsKind(lastErr, KindSandboxTimeout) {
		e.metrics.totalTimeouts++
	}
	e.metrics.mu.Unlock()

	if e.collector != nil {
		e.collector.Observe(result)
	}
	return result
}

func (e *Executor) executeWithTimeout(ctx context.Context, call ToolCall, timeout time.Duration) (*ToolResult, error) {
	spanCtx, span := startToolSpan(ctx, call.Name)
	defer span.End()

	execCtx, cancel := context.WithTimeout(spanCtx, timeout)
	defer cancel()

	type outcome struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.metrics.mu.Lock()
				e.metrics.totalPanics++
				e.metrics.mu.Unlock()
				resultCh <- outcome{err: NewError(KindToolExecution, fmt.Sprintf("panic: %v\n%s", r, debug.Stack()), nil).WithTool(call.Name, call.ID)}
			}
		}()

		result, err := e.registry.Execute(execCtx, call.Name, call.Input)
		if err != nil {
			resultCh <- outcome{err: err}
			return
		}
		resultCh <- outcome{result: result}
	}()

	select {
	case o := <-resultCh:
		return o.result, o.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, NewError(KindToolAbort, "context cancelled", ctx.Err()).WithTool(call.Name, call.ID)
		}
		return nil, NewError(KindSandboxTimeout, fmt.Sprintf("execution timed out after %s", timeout), nil).WithTool(call.Name, call.ID)
	}
}

// Metrics returns a point-in-time snapshot.
func (e *Executor) Metrics() ExecutorMetricsSnapshot {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return ExecutorMetricsSnapshot{
		TotalExecutions: e.metrics.totalExecutions,
		TotalRetries:    e.metrics.totalRetries,
		TotalFailures:   e.metrics.totalFailures,
		TotalTimeouts:   e.metrics.totalTimeouts,
		TotalPanics:     e.metrics.totalPanics,
	}
}

// ExecutorMetricsSnapshot is a copy-safe view of executor counters.
type ExecutorMetricsSnapshot struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// AnyErrors reports whether any result in results carries an error.
func AnyErrors(results []*ExecutionResult) bool {
	for _, r := range results {
		if r.Error != nil {
			return true
		}
	}
	return false
}
