package mcp

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes MCP connection-lifecycle counters under the agentcore_mcp
// namespace. A Manager is usable without ever wiring a Metrics instance;
// Manager.WithMetrics attaches one, after which the manager records every
// event it publishes and every Manager.CallTool through it.
type Metrics struct {
	StateTransitions *prometheus.CounterVec
	ConnectErrors    *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ToolCallErrors   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "mcp",
			Name:      "state_transitions_total",
			Help:      "Count of MCP client state transitions by server and resulting state.",
		}, []string{"server", "state"}),
		ConnectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "mcp",
			Name:      "connect_errors_total",
			Help:      "Count of failed MCP connection attempts by server.",
		}, []string{"server"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Count of MCP tool invocations by server and tool.",
		}, []string{"server", "tool"}),
		ToolCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "mcp",
			Name:      "tool_call_errors_total",
			Help:      "Count of failed MCP tool invocations by server and tool.",
		}, []string{"server", "tool"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.StateTransitions, m.ConnectErrors, m.ToolCalls, m.ToolCallErrors}
}

// ObserveEvent records a ManagerEvent. A Manager with this Metrics attached
// calls it for every event it publishes, before the event reaches
// Manager.Events.
func (m *Metrics) ObserveEvent(ev ManagerEvent) {
	if ev.Type != EventClientStatusChanged {
		return
	}
	m.StateTransitions.WithLabelValues(ev.ServerID, string(ev.State)).Inc()
	if ev.State == StateError {
		m.ConnectErrors.WithLabelValues(ev.ServerID).Inc()
	}
}

func (m *Metrics) ObserveToolCall(serverID, toolName string, err error) {
	m.ToolCalls.WithLabelValues(serverID, toolName).Inc()
	if err != nil {
		m.ToolCallErrors.WithLabelValues(serverID, toolName).Inc()
	}
}
