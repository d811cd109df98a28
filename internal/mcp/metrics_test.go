package mcp

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserveEventRecordsStateTransition(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(ManagerEvent{Type: EventClientStatusChanged, ServerID: "srv", State: StateConnectedToolDiscovered})

	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("srv", string(StateConnectedToolDiscovered))); got != 1 {
		t.Errorf("expected 1 state transition recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConnectErrors.WithLabelValues("srv")); got != 0 {
		t.Errorf("expected no connect errors for a non-error state, got %v", got)
	}
}

func TestMetricsObserveEventRecordsConnectError(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(ManagerEvent{Type: EventClientStatusChanged, ServerID: "srv", State: StateError})

	if got := testutil.ToFloat64(m.ConnectErrors.WithLabelValues("srv")); got != 1 {
		t.Errorf("expected 1 connect error recorded, got %v", got)
	}
}

func TestMetricsObserveEventIgnoresNonStatusEvents(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(ManagerEvent{Type: EventServerAdded, ServerID: "srv"})

	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("srv", "")); got != 0 {
		t.Errorf("expected server_added to not record a state transition, got %v", got)
	}
}

func TestMetricsObserveToolCall(t *testing.T) {
	m := NewMetrics()
	m.ObserveToolCall("srv", "search", nil)
	m.ObserveToolCall("srv", "search", errors.New("failed"))

	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("srv", "search")); got != 2 {
		t.Errorf("expected 2 tool calls recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolCallErrors.WithLabelValues("srv", "search")); got != 1 {
		t.Errorf("expected 1 tool call error recorded, got %v", got)
	}
}
