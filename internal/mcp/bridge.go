package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexcore/agentcore/internal/agent"
	"github.com/nexcore/agentcore/pkg/models"
)

// ToolBridge exposes a single remote MCP tool as an agent.Tool. Its name is
// always exactly "<serverID>_<toolName>" — the spec resolves name collisions
// by rejecting registration (see Manager.checkToolCollision), not by
// renaming, so no hashing or truncation is needed here.
type ToolBridge struct {
	mgr      *Manager
	serverID string
	tool     *MCPTool
}

// NewToolBridge wraps tool, owned by serverID, as an agent.Tool callable
// through mgr.
func NewToolBridge(mgr *Manager, serverID string, tool *MCPTool) *ToolBridge {
	return &ToolBridge{mgr: mgr, serverID: serverID, tool: tool}
}

// BridgeName returns the "<serverID>_<toolName>" name a ToolBridge will
// register under, without constructing one — used by the manager to detect
// collisions before connecting.
func BridgeName(serverID, toolName string) string {
	return serverID + "_" + toolName
}

func (b *ToolBridge) Name() string { return BridgeName(b.serverID, b.tool.Name) }

func (b *ToolBridge) Description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s on server %s", b.tool.Name, b.serverID)
	}
	return fmt.Sprintf("%s (MCP tool %s on server %s)", desc, b.tool.Name, b.serverID)
}

func (b *ToolBridge) InputSchema() json.RawMessage {
	if len(b.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b.tool.InputSchema
}

func (b *ToolBridge) OutputSchema() json.RawMessage { return nil }

// AllowedCallers returns direct only: programmatic (sandboxed) callers get
// their MCP tool access, if any, through a dedicated proxy rather than a
// shared ToolBridge instance.
func (b *ToolBridge) AllowedCallers() []agent.CallerKind {
	return []agent.CallerKind{agent.CallerDirect}
}

func (b *ToolBridge) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var arguments map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &arguments); err != nil {
			return nil, fmt.Errorf("unmarshal arguments: %w", err)
		}
	}

	result, err := b.mgr.CallTool(ctx, b.serverID, b.tool.Name, arguments)
	if err != nil {
		return nil, err
	}

	return &agent.ToolResult{Content: toolCallResultToBlocks(result), IsError: result != nil && result.IsError}, nil
}

func toolCallResultToBlocks(result *ToolCallResult) []models.ContentBlock {
	if result == nil || len(result.Content) == 0 {
		return nil
	}
	blocks := make([]models.ContentBlock, 0, len(result.Content))
	for _, item := range result.Content {
		switch item.Type {
		case "image":
			blocks = append(blocks, models.Image(item.MimeType, item.Data))
		default:
			blocks = append(blocks, models.Text(item.Text))
		}
	}
	return blocks
}

// RegisterServerTools registers every tool exposed by serverID into
// registry, using the exact "<serverID>_<toolName>" name. Returns the first
// registration error encountered (typically a name collision or an invalid
// input schema), leaving any tools registered before the failure in place.
func RegisterServerTools(registry *agent.ToolRegistry, mgr *Manager, serverID string) error {
	client, ok := mgr.Client(serverID)
	if !ok {
		return fmt.Errorf("mcp: server %q not connected", serverID)
	}
	for _, tool := range client.Tools() {
		if err := registry.Register(NewToolBridge(mgr, serverID, tool)); err != nil {
			return fmt.Errorf("register mcp tool %s: %w", BridgeName(serverID, tool.Name), err)
		}
	}
	return nil
}
