package agent

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for tool execution; an Executor
// attached with WithMetrics updates the tool collectors through Observe.
// Nothing in this package increments TurnsTotal.
// Grounded on the teacher's ExecutorMetrics counters, exported as real
// collectors instead of a private snapshot struct.
type Metrics struct {
	ToolExecutions *prometheus.CounterVec
	ToolFailures   *prometheus.CounterVec
	ToolTimeouts   *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec
	TurnsTotal     prometheus.Counter
}

// NewMetrics constructs collectors registered under the agentcore namespace.
// Callers register them with their own prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total tool executions by tool name.",
		}, []string{"tool"}),
		ToolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "tool",
			Name:      "failures_total",
			Help:      "Total tool execution failures by tool name.",
		}, []string{"tool"}),
		ToolTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "tool",
			Name:      "timeouts_total",
			Help:      "Total tool execution timeouts by tool name.",
		}, []string{"tool"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Tool execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		TurnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "loop",
			Name:      "turns_total",
			Help:      "Total assistant turns completed across all tasks.",
		}),
	}
}

// Collectors returns every collector for bulk registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.ToolExecutions, m.ToolFailures, m.ToolTimeouts, m.ToolDuration, m.TurnsTotal}
}

// Observe records one ExecutionResult's outcome.
func (m *Metrics) Observe(r *ExecutionResult) {
	m.ToolExecutions.WithLabelValues(r.ToolName).Inc()
	m.ToolDuration.WithLabelValues(r.ToolName).Observe(r.Duration.Seconds())
	if r.Error != nil {
		m.ToolFailures.WithLabelValues(r.ToolName).Inc()
		if IsKind(r.Error, KindSandboxTimeout) {
			m.ToolTimeouts.WithLabelValues(r.ToolName).Inc()
		}
	}
}
