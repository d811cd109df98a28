package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// entry pairs a registered Tool with its compiled input schema.
type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// ToolRegistry holds every tool the loop and sandbox can see, merged from
// locally-registered tools and MCP-bridged remote tools. Input schemas are
// compiled once at Register time so a malformed schema fails registration
// rather than the first call.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*entry)}
}

// Register adds t to the registry. Returns ErrInvalidToolName if t.Name()
// fails the naming rule, ErrDuplicateTool if the name is already taken, or a
// schema compile error if t.InputSchema() is malformed.
func (r *ToolRegistry) Register(t Tool) error {
	name := t.Name()
	if !ValidToolName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}

	schema, err := compileSchema(name, t.InputSchema())
	if err != nil {
		return fmt.Errorf("register tool %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.tools[name] = &entry{tool: t, schema: schema}
	return nil
}

// Unregister removes a tool by name. No-op if the name isn't present.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the named tool, or nil and false if not present.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Execute validates input against the tool's compiled schema, then runs it.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input []byte) (*ToolResult, error) {
	return r.ExecuteAs(ctx, name, input, CallerDirect)
}

// ExecuteAs is Execute, additionally checking that caller is one of the
// tool's AllowedCallers. The sandbox controller uses this with
// CallerProgrammatic so a tool not declared for programmatic use can't be
// reached from inside executed code even if its name happens to match a
// toolDefinitions entry.
func (r *ToolRegistry) ExecuteAs(ctx context.Context, name string, input []byte, caller CallerKind) (*ToolResult, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if !AllowsCaller(e.tool.AllowedCallers(), caller) {
		return nil, NewError(KindInvalidToolInput, fmt.Sprintf("tool %q not callable by %s", name, caller), nil).WithTool(name, "")
	}

	if err := validateInput(e.schema, input); err != nil {
		return nil, NewError(KindInvalidToolInput, err.Error(), err).WithTool(name, "")
	}

	return e.tool.Execute(ctx, input)
}

// ExecuteProgrammatic runs name as a CallerProgrammatic invocation and
// marshals its ToolResult to JSON, the shape the sandbox controller writes
// back to a runner's tool_call proxy as tool_response.result. Satisfies
// sandbox.ToolCaller by structural typing.
func (r *ToolRegistry) ExecuteProgrammatic(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	result, err := r.ExecuteAs(ctx, name, input, CallerProgrammatic)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// toolsFor returns every registered tool visible to kind, sorted by name for
// deterministic ordering in the tool list sent to the provider.
func (r *ToolRegistry) toolsFor(kind CallerKind) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		if AllowsCaller(e.tool.AllowedCallers(), kind) {
			out = append(out, e.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DirectTools returns tools callable by the agent loop itself.
func (r *ToolRegistry) DirectTools() []Tool { return r.toolsFor(CallerDirect) }

// ProgrammaticTools returns tools callable from inside the code-execution
// sandbox.
func (r *ToolRegistry) ProgrammaticTools() []Tool { return r.toolsFor(CallerProgrammatic) }
