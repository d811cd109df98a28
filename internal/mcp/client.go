package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is an MCP client for a single server, layering the connection
// state machine (state.go) on top of the request/response transport
// (transport.go). Connect does not check the current state: each call runs
// the transport connect and handshake again. Retry, SetDesiredEnabled and
// Manager.Connect reconnect by calling Connect.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger
	oauth     CallbackProvider

	sm *stateMachine

	mu          sync.RWMutex
	tools       []*MCPTool
	resources   []*MCPResource
	prompts     []*MCPPrompt
	serverInfo  ServerInfo
	lastErr     error
	bearerToken string
}

// NewClient creates a disconnected client for cfg. oauth may be nil if the
// server never challenges with OAuth.
func NewClient(cfg *ServerConfig, logger *slog.Logger, oauth CallbackProvider) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
		oauth:     oauth,
		sm:        newStateMachine(),
	}
}

// State returns the client's current actual state.
func (c *Client) State() State { return c.sm.Current() }

// Subscribe returns a channel of future state transitions and a cancel func.
func (c *Client) Subscribe() (<-chan State, func()) { return c.sm.subscribe() }

// WaitForConnection blocks until the client reaches connected.toolDiscovered,
// StateError, or timeout elapses, whichever comes first.
func (c *Client) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	if connected(c.sm.Current()) {
		return nil
	}
	ch, cancel := c.sm.subscribe()
	defer cancel()

	deadline := time.After(timeout)
	for {
		select {
		case s := <-ch:
			if s == StateConnectedToolDiscovered {
				return nil
			}
			if s == StateError {
				return c.lastError()
			}
		case <-deadline:
			return fmt.Errorf("mcp: timed out waiting for %s to connect", c.config.ID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) lastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.sm.transition(StateError)
}

// Retry reattempts connection from the error state, driving the
// error -> connecting transition the reconciliation table calls for instead
// of requiring the caller to tear the client down and build a new one.
func (c *Client) Retry(ctx context.Context) error {
	if c.State() != StateError {
		return fmt.Errorf("mcp: retry only valid from error state, current state is %s", c.State())
	}
	return c.Connect(ctx)
}

// SetDesiredEnabled updates the client's desired state and reconciles toward
// it asynchronously: true reconnects (or retries, from error) in the
// background, false tears the connection down in the background. Callers
// that need to observe the outcome should use Subscribe or WaitForConnection
// rather than blocking on this call.
func (c *Client) SetDesiredEnabled(enabled bool) {
	if enabled {
		c.sm.SetDesired(DesiredConnected)
		go func() {
			switch c.State() {
			case StateError:
				if err := c.Retry(context.Background()); err != nil {
					c.logger.Warn("async retry failed", "error", err)
				}
			case StateDisconnected:
				if err := c.Connect(context.Background()); err != nil {
					c.logger.Warn("async connect failed", "error", err)
				}
			}
		}()
		return
	}

	c.sm.SetDesired(DesiredDisconnected)
	go func() {
		switch c.State() {
		case StateDisconnected, StateDisposed, StateAborting:
			return
		default:
			if err := c.Close(); err != nil {
				c.logger.Warn("async close failed", "error", err)
			}
		}
	}()
}

// Connect drives disconnected -> connecting.initial -> connected.initial ->
// connected.toolDiscovered, handling a mid-handshake OAuth challenge by
// moving through connecting.awaitingOAuth instead of failing outright.
func (c *Client) Connect(ctx context.Context) error {
	c.sm.SetDesired(DesiredConnected)
	c.sm.transition(StateConnectingInitial)

	if token := c.getBearerToken(); token != "" && tokenExpired(token) {
		c.logger.Info("cached oauth token expired, clearing before reconnect")
		c.setBearerToken("")
	}

	if err := c.transport.Connect(ctx); err != nil {
		if challenge, ok := asOAuthChallenge(err); ok {
			return c.connectWithOAuth(ctx, challenge)
		}
		c.setError(fmt.Errorf("transport connect: %w", err))
		return c.lastError()
	}

	if err := c.handshake(ctx); err != nil {
		c.transport.Close()
		c.setError(err)
		return err
	}

	c.sm.transition(StateConnectedInitial)

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}
	c.sm.transition(StateConnectedToolDiscovered)
	go c.watchTransportFailure()
	return nil
}

func (c *Client) getBearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearerToken
}

func (c *Client) setBearerToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

// watchTransportFailure polls the transport after a successful connect and
// drives connected -> disconnectingDueToError -> error if the transport
// drops on its own (subprocess exit, SSE loop giving up) rather than through
// Close or Dispose. It returns once the client leaves a connected substate
// for any reason.
func (c *Client) watchTransportFailure() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if !connected(c.sm.Current()) {
			return
		}
		if c.transport.Connected() {
			continue
		}
		c.mu.Lock()
		c.lastErr = fmt.Errorf("mcp: transport for %s disconnected unexpectedly", c.config.ID)
		c.mu.Unlock()
		c.sm.transition(StateDisconnectingDueToError)
		c.sm.transition(StateError)
		return
	}
}

func (c *Client) connectWithOAuth(ctx context.Context, authURL string) error {
	c.sm.transition(StateConnectingAwaitingOAuth)

	code, err := oauthFlow(ctx, authURL, c.oauth)
	if err != nil {
		c.setError(err)
		return err
	}
	c.setBearerToken(code)

	if err := c.transport.Connect(context.WithValue(ctx, oauthCodeKey{}, code)); err != nil {
		c.setError(fmt.Errorf("transport connect after oauth: %w", err))
		return c.lastError()
	}
	if err := c.handshake(ctx); err != nil {
		c.transport.Close()
		c.setError(err)
		return err
	}
	c.sm.transition(StateConnectedInitial)
	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}
	c.sm.transition(StateConnectedToolDiscovered)
	go c.watchTransportFailure()
	return nil
}

type oauthCodeKey struct{}

// OAuthChallengeError is returned by a Transport's Connect/Call when the
// server demands OAuth authorization before proceeding. AuthURL is where
// the user must approve access.
type OAuthChallengeError struct {
	AuthURL string
}

func (e *OAuthChallengeError) Error() string {
	return fmt.Sprintf("mcp: oauth authorization required: %s", e.AuthURL)
}

// asOAuthChallenge recognizes a transport error carrying an OAuth
// authorization redirect, returning the URL to visit.
func asOAuthChallenge(err error) (authURL string, ok bool) {
	var challenge *OAuthChallengeError
	if errors.As(err, &challenge) {
		return challenge.AuthURL, true
	}
	return "", false
}

func (c *Client) handshake(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": true},
		},
		"clientInfo": map[string]any{"name": "agentcore", "version": "1.0.0"},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info("connected to MCP server",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}
	return nil
}

// Close drives the client toward disconnected (or disposed, for a final
// teardown) and releases the transport.
func (c *Client) Close() error {
	c.sm.SetDesired(DesiredDisconnected)
	c.sm.transition(StateDisconnecting)
	err := c.transport.Close()
	c.sm.transition(StateDisconnected)
	return err
}

// Dispose permanently tears the client down; after this call the client
// must not be reused.
func (c *Client) Dispose() error {
	c.sm.SetDesired(DesiredDisposed)
	c.sm.transition(StateAborting)
	err := c.transport.Close()
	c.sm.transition(StateDisposed)
	return err
}

func (c *Client) Config() *ServerConfig { return c.config }

func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Connected reports whether the client is in a connected.* substate.
func (c *Client) Connected() bool { return connected(c.sm.Current()) }

// RefreshCapabilities re-lists tools, resources, and prompts.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	if result, err := c.transport.Call(ctx, "tools/list", nil); err == nil {
		var resp ListToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.tools = resp.Tools
			c.mu.Unlock()
			c.logger.Debug("refreshed tools", "count", len(resp.Tools))
		}
	}
	if result, err := c.transport.Call(ctx, "resources/list", nil); err == nil {
		var resp ListResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.resources = resp.Resources
			c.mu.Unlock()
		}
	}
	if result, err := c.transport.Call(ctx, "prompts/list", nil); err == nil {
		var resp ListPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.prompts = resp.Prompts
			c.mu.Unlock()
		}
	}
	return nil
}

func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

func (c *Client) Resources() []*MCPResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

func (c *Client) Prompts() []*MCPPrompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// CallTool invokes a tool on the server. It coerces the legacy
// {toolResult: any} response shape some servers still emit into the
// standard {content: [...]} shape before returning.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	if token := c.getBearerToken(); token != "" && tokenExpired(token) {
		return nil, fmt.Errorf("mcp: oauth token for %s has expired, call Retry to re-authenticate", c.config.ID)
	}

	params := CallToolParams{Name: name}
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = argsJSON
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	return coerceToolCallResult(result)
}

// legacyToolResult matches servers predating the content-block result shape.
type legacyToolResult struct {
	ToolResult json.RawMessage `json:"toolResult"`
}

func coerceToolCallResult(raw json.RawMessage) (*ToolCallResult, error) {
	var callResult ToolCallResult
	if err := json.Unmarshal(raw, &callResult); err == nil && callResult.Content != nil {
		return &callResult, nil
	}

	var legacy legacyToolResult
	if err := json.Unmarshal(raw, &legacy); err == nil && len(legacy.ToolResult) > 0 {
		text := string(legacy.ToolResult)
		if unquoted, err := strconvUnquoteJSONString(legacy.ToolResult); err == nil {
			text = unquoted
		}
		return &ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: text}}}, nil
	}

	return nil, fmt.Errorf("parse tools/call result: unrecognized shape")
}

func strconvUnquoteJSONString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var readResult ReadResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return readResult.Contents, nil
}

func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.transport.Call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}
	var promptResult GetPromptResult
	if err := json.Unmarshal(result, &promptResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &promptResult, nil
}

// Events returns the transport's notification channel.
func (c *Client) Events() <-chan *JSONRPCNotification {
	return c.transport.Events()
}

// isUnauthorized reports whether err's text contains "status 401". Nothing
// in this package calls it: the OAuth-awaiting transition is triggered by
// an *OAuthChallengeError from the transport (see asOAuthChallenge).
func isUnauthorized(err error) bool {
	return err != nil && strings.Contains(err.Error(), fmt.Sprintf("status %d", http.StatusUnauthorized))
}
