package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nexcore/agentcore/internal/agent/taskevent"
	"github.com/nexcore/agentcore/pkg/models"
)

// LoopConfig configures a Loop's turn-taking behavior. Construct via
// DefaultLoopConfig and override only the fields that matter; sanitizeLoopConfig
// fills in anything left zero.
type LoopConfig struct {
	SystemPrompt  string
	MaxTokens     int
	MaxIterations int
	ReplayLen     int
	Logger        *slog.Logger
}

// DefaultLoopConfig returns baseline loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxTokens:     4096,
		MaxIterations: 25,
		ReplayLen:     taskevent.DefaultReplayLen,
	}
}

func sanitizeLoopConfig(c *LoopConfig) *LoopConfig {
	if c == nil {
		c = &LoopConfig{}
	}
	out := *c
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	if out.MaxIterations <= 0 {
		out.MaxIterations = 25
	}
	if out.ReplayLen <= 0 {
		out.ReplayLen = taskevent.DefaultReplayLen
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// Loop is the turn-based conversation loop between a ModelProvider and a set
// of direct Tools: it streams one assistant turn, executes every tool_use
// block the assistant produced in document order, feeds the results back as
// a synthesized user message, and repeats until the assistant stops
// requesting tools or a limit is hit. Only one task may run at a time per
// Loop instance.
type Loop struct {
	provider ModelProvider
	registry *ToolRegistry
	executor *Executor
	config   *LoopConfig

	mu       sync.Mutex
	running  bool
	cancelFn context.CancelFunc
	reason   string
	messages []models.Message
	stream   *taskevent.Stream
}

// NewLoop builds a Loop. A nil config uses DefaultLoopConfig.
func NewLoop(provider ModelProvider, registry *ToolRegistry, executor *Executor, config *LoopConfig) *Loop {
	return &Loop{
		provider: provider,
		registry: registry,
		executor: executor,
		config:   sanitizeLoopConfig(config),
	}
}

// Start claims the run slot and begins processing input as a new user
// message. It returns ErrTaskAlreadyRunning if a task is already active. The
// returned Stream carries every event this task (and any that ran before it
// on this Loop) produced, bounded by LoopConfig.ReplayLen.
func (l *Loop) Start(ctx context.Context, input []models.ContentBlock) (*taskevent.Stream, error) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil, ErrTaskAlreadyRunning
	}
	l.running = true
	l.reason = ""
	runCtx, cancel := context.WithCancel(ctx)
	l.cancelFn = cancel
	if l.stream == nil {
		l.stream = taskevent.NewStream(l.config.ReplayLen)
	}
	stream := l.stream
	l.mu.Unlock()

	go l.run(runCtx, input)
	return stream, nil
}

// Cancel aborts the in-flight task, if any, with the given human-readable
// reason. No-op if no task is running.
func (l *Loop) Cancel(reason string) {
	l.mu.Lock()
	cancel := l.cancelFn
	if cancel != nil {
		l.reason = reason // surfaced via the cancelled event published from run()
	}
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// History returns a snapshot of the conversation accumulated so far.
func (l *Loop) History() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Loop) run(ctx context.Context, input []models.ContentBlock) {
	defer func() {
		l.mu.Lock()
		l.running = false
		l.cancelFn = nil
		l.mu.Unlock()
		l.publish(taskevent.New(taskevent.TypeHistoryChanged))
	}()

	userMsg := models.Message{Role: models.RoleUser, Content: input}
	l.appendMessage(userMsg)
	msgEvent := taskevent.New(taskevent.TypeMessage)
	msgEvent.Message = &userMsg
	l.publish(msgEvent)

	for iter := 0; iter < l.config.MaxIterations; iter++ {
		if ctx.Err() != nil {
			l.publishCancelled(ctx.Err().Error())
			return
		}

		turnCtx, span := startTurnSpan(ctx, iter)
		assistantMsg, err := l.runTurn(turnCtx)
		span.End()
		if err != nil {
			if ctx.Err() != nil {
				l.publishCancelled(ctx.Err().Error())
				return
			}
			l.config.Logger.Error("loop: provider turn failed", "error", err)
			return
		}

		l.appendMessage(*assistantMsg)
		ev := taskevent.New(taskevent.TypeMessage)
		ev.Message = assistantMsg
		l.publish(ev)

		toolUses := assistantMsg.ToolUseBlocks()
		if len(toolUses) == 0 {
			l.publish(taskevent.New(taskevent.TypeCompleted))
			return
		}

		resultMsg := l.runToolPhase(ctx, toolUses)
		l.appendMessage(resultMsg)
		ev2 := taskevent.New(taskevent.TypeMessage)
		ev2.Message = &resultMsg
		l.publish(ev2)

		if ctx.Err() != nil {
			l.publishCancelled(ctx.Err().Error())
			return
		}
	}

	l.publish(taskevent.New(taskevent.TypeCompleted))
}

// runTurn drives one streamed assistant turn, republishing every chunk as a
// task event, and returns the fully assembled assistant message.
func (l *Loop) runTurn(ctx context.Context) (*models.Message, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}

	tools := l.completionTools()
	handle, err := l.provider.StreamChat(ctx, l.config.SystemPrompt, l.History(), tools, l.config.MaxTokens)
	if err != nil {
		return nil, NewError(KindProviderError, "stream chat failed", err)
	}

	for chunk := range handle.Events() {
		l.publish(chunkToTaskEvent(chunk))
		if chunk.Type == StreamMessage {
			break
		}
	}

	msg, err := handle.FinalMessage()
	if err != nil {
		return nil, NewError(KindProviderError, "final message failed", err)
	}
	return msg, nil
}

// runToolPhase executes every tool_use block in document order (dispatched
// concurrently through the Executor, but the resulting tool_result blocks
// are assembled back in the original order) and synthesizes the matching
// user message.
func (l *Loop) runToolPhase(ctx context.Context, toolUses []models.ContentBlock) models.Message {
	// The TypeToolUse event for each call was already published from
	// chunkToTaskEvent on first observation of its id during the streaming
	// phase; only the tool_use_result/tool_use_error events below are new.
	calls := make([]ToolCall, len(toolUses))
	for i, tu := range toolUses {
		calls[i] = ToolCall{ID: tu.ToolUseID, Name: tu.Name, Input: tu.Input}
	}

	results := l.executor.ExecuteAll(ctx, calls)

	blocks := make([]models.ContentBlock, len(results))
	for i, r := range results {
		if r.Error != nil {
			ev := taskevent.New(taskevent.TypeToolUseError)
			ev.ToolUseID = r.ToolCallID
			ev.ToolName = r.ToolName
			ev.ToolError = r.Error.Error()
			l.publish(ev)

			blocks[i] = models.ToolResultBlock(r.ToolCallID, []models.ContentBlock{models.Text(r.Error.Error())}, true, nil)
			continue
		}

		ev := taskevent.New(taskevent.TypeToolUseResult)
		content := r.Result.Content
		var first *models.ContentBlock
		if len(content) > 0 {
			first = &content[0]
		}
		ev.ToolUseID = r.ToolCallID
		ev.ToolName = r.ToolName
		ev.ToolResult = first
		l.publish(ev)

		blocks[i] = models.ToolResultBlock(r.ToolCallID, content, r.Result.IsError, r.Result.StructuredContent)
	}

	return models.Message{Role: models.RoleUser, Content: blocks}
}

func (l *Loop) completionTools() []CompletionTool {
	direct := l.registry.DirectTools()
	out := make([]CompletionTool, len(direct))
	for i, t := range direct {
		out[i] = CompletionTool{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()}
	}
	return out
}

func (l *Loop) appendMessage(m models.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

func (l *Loop) publish(ev taskevent.Event) {
	l.mu.Lock()
	s := l.stream
	l.mu.Unlock()
	if s != nil {
		s.Publish(ev)
	}
}

func (l *Loop) publishCancelled(reason string) {
	l.mu.Lock()
	if l.reason != "" {
		reason = l.reason
	}
	l.mu.Unlock()
	ev := taskevent.New(taskevent.TypeCancelled)
	ev.Reason = reason
	l.publish(ev)
}

func chunkToTaskEvent(c StreamEvent) taskevent.Event {
	switch c.Type {
	case StreamText:
		ev := taskevent.New(taskevent.TypeText)
		ev.TextDelta = c.TextDelta
		return ev
	case StreamToolUse:
		ev := taskevent.New(taskevent.TypeToolUse)
		ev.ToolUseID = c.ToolUseID
		ev.ToolName = c.ToolName
		return ev
	case StreamToolUseInput:
		ev := taskevent.New(taskevent.TypeToolUseInput)
		ev.ToolUseID = c.ToolUseID
		ev.InputDelta = c.InputDelta
		return ev
	default:
		ev := taskevent.New(taskevent.TypeUsage)
		ev.InputTokens = c.InputTokens
		ev.OutputTokens = c.OutputTokens
		return ev
	}
}
