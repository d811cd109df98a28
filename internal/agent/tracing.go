package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in whatever TracerProvider the
// caller has globally configured. When no provider is configured,
// otel.Tracer falls back to a no-op implementation, so tracing is always
// safe to call and never requires an SDK to be wired in.
const tracerName = "github.com/nexcore/agentcore/internal/agent"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startTurnSpan wraps one assistant turn.
func startTurnSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.Int("agentcore.iteration", iteration),
	))
}

// startToolSpan wraps one tool execution.
func startToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.tool_execute", trace.WithAttributes(
		attribute.String("agentcore.tool_name", toolName),
	))
}
