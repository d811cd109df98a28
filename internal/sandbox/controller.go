package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// ToolCaller dispatches a proxied tool_call from inside the sandbox back
// through the host's tool registry. Implemented by *agent.ToolRegistry via
// its ExecuteAs(ctx, name, input, agent.CallerProgrammatic) method.
type ToolCaller interface {
	ExecuteProgrammatic(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error)
}

// RunnerCommand builds the argv for a fresh runner subprocess. A fresh
// process is spawned for every Execute call — runners never carry state
// across calls.
type RunnerCommand func() (name string, args []string)

// Controller spawns one runner subprocess per Execute call, feeds it the
// execute_code payload, and proxies every tool_call it emits back through
// caller until the runner emits its terminal result, the context is
// cancelled, or timeout elapses.
type Controller struct {
	command RunnerCommand
	caller  ToolCaller
	timeout time.Duration
	logger  *slog.Logger
}

func NewController(command RunnerCommand, caller ToolCaller, timeout time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Controller{command: command, caller: caller, timeout: timeout, logger: logger.With("component", "sandbox")}
}

// Execute runs code once in a fresh runner, proxying tool calls restricted
// to toolDefinitions, and returns the runner's terminal result. A runaway
// runner is forcefully killed at timeout and a synthetic
// {success:false, timedOut:true} result is returned — the only hard kill
// in the system.
func (c *Controller) Execute(ctx context.Context, language Language, code string, toolDefinitions []ToolDefinition) (*Result, error) {
	if language != LanguageTypeScript {
		return nil, fmt.Errorf("sandbox: unsupported language %q", language)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	name, args := c.command()
	cmd := exec.CommandContext(runCtx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdout pipe: %w", err)
	}
	stderr, _ := cmd.StderrPipe()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: start runner: %w", err)
	}

	session := &runnerSession{
		controller: c,
		stdin:      stdin,
		scanner:    bufio.NewScanner(stdout),
		pending:    make(map[string]chan struct{}),
		resultCh:   make(chan *Result, 1),
		allowed:    make(map[string]bool, len(toolDefinitions)),
	}
	for _, def := range toolDefinitions {
		session.allowed[def.Name] = true
	}
	session.scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	go session.logStderr(stderr)
	go session.readLoop()

	if err := session.send(downstream{
		Type:            downstreamExecute,
		Language:        language,
		Code:            code,
		ToolDefinitions: toolDefinitions,
	}); err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: send execute: %w", err)
	}

	select {
	case result := <-session.resultCh:
		cmd.Wait()
		return result, nil
	case <-runCtx.Done():
		cmd.Process.Kill()
		cmd.Wait()
		return &Result{Success: false, TimedOut: true}, nil
	}
}

// runnerSession holds one runner subprocess's pipes and the tool names its
// execute message advertised. Each tool_call is answered from its own
// goroutine with a tool_response carrying the same callId; the pending map
// is allocated but not used.
type runnerSession struct {
	controller *Controller
	stdin      io.WriteCloser
	scanner    *bufio.Scanner

	mu      sync.Mutex
	pending map[string]chan struct{}
	allowed map[string]bool

	resultCh chan *Result
}

func (s *runnerSession) send(msg downstream) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = s.stdin.Write(append(data, '\n'))
	return err
}

func (s *runnerSession) readLoop() {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg upstream
		if err := json.Unmarshal(line, &msg); err != nil {
			s.controller.logger.Warn("sandbox: malformed runner message", "error", err)
			continue
		}
		switch msg.Type {
		case upstreamToolCall:
			go s.handleToolCall(msg)
		case upstreamResult:
			s.resultCh <- &Result{Success: msg.Success, Data: msg.Data, Error: msg.ResErr, Logs: msg.Logs, TimedOut: msg.TimedOut}
			return
		}
	}
}

// handleToolCall dispatches one proxied tool_call immediately on receipt
// and answers asynchronously; a runner may have several calls outstanding
// at once, matched only by callId, with no ordering guarantee on replies.
func (s *runnerSession) handleToolCall(msg upstream) {
	ctx := context.Background()
	resp := downstream{Type: downstreamToolResponse, CallID: msg.CallID}
	if !s.allowed[msg.ToolName] {
		resp.Error = fmt.Sprintf("tool %q is not in this execution's toolDefinitions", msg.ToolName)
	} else if result, err := s.controller.caller.ExecuteProgrammatic(ctx, msg.ToolName, msg.Args); err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = result
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(resp); err != nil {
		s.controller.logger.Warn("sandbox: failed to send tool_response", "callId", msg.CallID, "error", err)
	}
}

func (s *runnerSession) logStderr(stderr io.ReadCloser) {
	if stderr == nil {
		return
	}
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.controller.logger.Debug("sandbox runner stderr", "message", scanner.Text())
	}
}
