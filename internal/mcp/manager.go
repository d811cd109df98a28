package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nexcore/agentcore/internal/agent"
)

// Config holds the MCP manager configuration: whether MCP is enabled at
// all, and the set of servers it may connect to.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`
}

// ManagerEventType discriminates Manager lifecycle notifications.
type ManagerEventType string

const (
	EventServerAdded          ManagerEventType = "server_added"
	EventServerUpdated        ManagerEventType = "server_updated"
	EventServerRemoved        ManagerEventType = "server_removed"
	EventClientStatusChanged  ManagerEventType = "client_status_changed"
)

// ManagerEvent is published to Manager.Events subscribers whenever the
// server set or a client's state changes.
type ManagerEvent struct {
	Type     ManagerEventType
	ServerID string
	State    State
}

// Manager owns every MCP server connection and reconciles each client's
// actual state toward its desired state. It also maintains the merged view
// of tools available across all connected.toolDiscovered servers, rejecting
// registration on name collision rather than silently renaming.
type Manager struct {
	config  *Config
	logger  *slog.Logger
	clients  map[string]*Client
	oauth    CallbackProvider
	metrics  *Metrics
	registry *agent.ToolRegistry
	mu       sync.RWMutex

	events chan ManagerEvent
}

// WithMetrics attaches a Metrics collector; every subsequent event and tool
// call is recorded through it.
func (m *Manager) WithMetrics(metrics *Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithRegistry attaches the agent.ToolRegistry that newly connected servers'
// tools are bridged into. Optional; without one, Connect still reconciles
// state but nothing is bridged into an agent's tool set.
func (m *Manager) WithRegistry(registry *agent.ToolRegistry) *Manager {
	m.registry = registry
	return m
}

// NewManager creates a Manager over cfg. oauth is passed through to every
// client it creates.
func NewManager(cfg *Config, logger *slog.Logger, oauth CallbackProvider) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
		oauth:   oauth,
		events:  make(chan ManagerEvent, 64),
	}
}

// Events returns the manager's event stream. The channel is never closed,
// by Stop or otherwise.
func (m *Manager) Events() <-chan ManagerEvent { return m.events }

func (m *Manager) publish(ev ManagerEvent) {
	if m.metrics != nil {
		m.metrics.ObserveEvent(ev)
	}
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("manager event channel full, dropping event", "type", ev.Type)
	}
}

// Start connects every configured server marked AutoStart.
func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		m.logger.Debug("MCP disabled")
		return nil
	}
	for _, serverCfg := range m.config.Servers {
		if !serverCfg.AutoStart {
			continue
		}
		if err := m.Connect(ctx, serverCfg.ID); err != nil {
			m.logger.Error("failed to connect to MCP server", "server", serverCfg.ID, "error", err)
		}
	}
	return nil
}

// Stop disconnects every client.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("failed to close MCP client", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

// RegisterServer adds serverCfg to the managed set and publishes
// server_added. Returns an error if the ID is already registered.
func (m *Manager) RegisterServer(serverCfg *ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cfg := range m.config.Servers {
		if cfg.ID == serverCfg.ID {
			return fmt.Errorf("mcp: server %q already registered", serverCfg.ID)
		}
	}
	m.config.Servers = append(m.config.Servers, serverCfg)
	m.publish(ManagerEvent{Type: EventServerAdded, ServerID: serverCfg.ID})
	return nil
}

// RemoveServer disconnects (if connected) and removes serverID from the
// managed set, publishing server_removed.
func (m *Manager) RemoveServer(serverID string) error {
	if err := m.Disconnect(serverID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cfg := range m.config.Servers {
		if cfg.ID == serverID {
			m.config.Servers = append(m.config.Servers[:i], m.config.Servers[i+1:]...)
			break
		}
	}
	m.publish(ManagerEvent{Type: EventServerRemoved, ServerID: serverID})
	return nil
}

// Connect connects to serverID, wiring state-transition notifications
// through to the manager's event stream, and validates that none of its
// tool names collide with an already-connected server's tools.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	var serverCfg *ServerConfig
	for _, cfg := range m.config.Servers {
		if cfg.ID == serverID {
			serverCfg = cfg
			break
		}
	}
	if serverCfg == nil {
		return fmt.Errorf("server %q not found in config", serverID)
	}

	m.mu.Lock()
	client, exists := m.clients[serverID]
	if exists && client.Connected() {
		m.mu.Unlock()
		return nil
	}
	if !exists {
		client = NewClient(serverCfg, m.logger, m.oauth)
		m.clients[serverID] = client
		m.mu.Unlock()
		m.watchState(client)
	} else {
		m.mu.Unlock()
	}

	// The client record is stored before the connect attempt (above) so that
	// on failure it stays reachable through Manager.Client for the caller to
	// retry, per the registerServer failure semantics: a rejected connect
	// leaves the client record in place rather than discarding it.
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if err := m.checkToolCollision(client); err != nil {
		client.Close()
		return err
	}

	if m.registry != nil {
		if err := RegisterServerTools(m.registry, m, serverID); err != nil {
			client.Close()
			return err
		}
	}

	m.logger.Info("connected to MCP server", "server", serverID, "name", client.ServerInfo().Name)
	return nil
}

// checkToolCollision rejects a newly connected client if any of its tool
// names are already exposed by another connected server. The spec resolves
// name collisions by rejecting registration, not by renaming.
func (m *Manager) checkToolCollision(candidate *Client) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]string, len(candidate.Tools()))
	for id, c := range m.clients {
		if c == candidate || !c.Connected() {
			continue
		}
		for _, t := range c.Tools() {
			seen[t.Name] = id
		}
	}
	for _, t := range candidate.Tools() {
		if owner, ok := seen[t.Name]; ok {
			return fmt.Errorf("mcp: tool name %q from server %q collides with server %q", t.Name, candidate.Config().ID, owner)
		}
	}
	return nil
}

func (m *Manager) watchState(c *Client) {
	ch, _ := c.Subscribe()
	go func() {
		for s := range ch {
			m.publish(ManagerEvent{Type: EventClientStatusChanged, ServerID: c.Config().ID, State: s})
		}
	}()
}

// Disconnect disconnects a specific server.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, exists := m.clients[serverID]
	if !exists {
		return nil
	}
	if err := client.Close(); err != nil {
		return err
	}
	delete(m.clients, serverID)
	m.logger.Info("disconnected from MCP server", "server", serverID)
	return nil
}

func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[serverID]
	return client, exists
}

// Clients returns every client whose actual state is connected.toolDiscovered.
func (m *Manager) Clients() map[string]*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]*Client, len(m.clients))
	for id, client := range m.clients {
		if client.Connected() {
			result[id] = client
		}
	}
	return result
}

// AllTools returns all tools from every connected server, keyed by server ID.
func (m *Manager) AllTools() map[string][]*MCPTool {
	clients := m.Clients()
	result := make(map[string][]*MCPTool, len(clients))
	for id, client := range clients {
		if tools := client.Tools(); len(tools) > 0 {
			result[id] = tools
		}
	}
	return result
}

func (m *Manager) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}
	result, err := client.CallTool(ctx, toolName, arguments)
	if m.metrics != nil {
		m.metrics.ObserveToolCall(serverID, toolName, err)
	}
	return result, err
}

// FindTool finds a tool by name across every connected server.
func (m *Manager) FindTool(name string) (serverID string, tool *MCPTool) {
	for id, client := range m.Clients() {
		for _, t := range client.Tools() {
			if t.Name == name {
				return id, t
			}
		}
	}
	return "", nil
}

func (m *Manager) ReadResource(ctx context.Context, serverID, uri string) ([]*ResourceContent, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}
	return client.ReadResource(ctx, uri)
}

func (m *Manager) GetPrompt(ctx context.Context, serverID, name string, arguments map[string]string) (*GetPromptResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("server %q not connected", serverID)
	}
	return client.GetPrompt(ctx, name, arguments)
}

// ToolSchema is one tool's schema prefixed with the owning server, used to
// build the agent's bridged Tool set.
type ToolSchema struct {
	ServerID    string          `json:"server_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func (m *Manager) ToolSchemas() []ToolSchema {
	var schemas []ToolSchema
	for id, client := range m.Clients() {
		for _, tool := range client.Tools() {
			schemas = append(schemas, ToolSchema{ServerID: id, Name: tool.Name, Description: tool.Description, InputSchema: tool.InputSchema})
		}
	}
	return schemas
}

// ServerStatus summarizes one configured server's connection state.
type ServerStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
	Resources int        `json:"resources"`
	Prompts   int        `json:"prompts"`
}

func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var statuses []ServerStatus
	for _, cfg := range m.config.Servers {
		status := ServerStatus{ID: cfg.ID, Name: cfg.Name, State: StateDisconnected}
		if client, exists := m.clients[cfg.ID]; exists {
			status.State = client.State()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
			status.Resources = len(client.Resources())
			status.Prompts = len(client.Prompts())
		}
		statuses = append(statuses, status)
	}
	return statuses
}
