// Package voice owns the lifecycle of a realtime voice session: the
// connection state machine, automatic reconnection, tool call routing, and
// the facade the rest of the application talks to.
//
// Protocol-level plumbing (frames, adapter, normalizer, transport) lives in
// pkg/realtime; this package composes it with the backend client and the
// observability stack.
package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/nmellis/casavox/internal/observe"
	"github.com/nmellis/casavox/internal/resilience"
	"github.com/nmellis/casavox/pkg/realtime"
)

// ToolExecutor executes one proxied tool call against the backend.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, req realtime.ToolCallRequest) (string, error)
}

// defaultToolTimeout bounds a single backend tool execution.
const defaultToolTimeout = 30 * time.Second

// ToolProxy invokes backend tools on behalf of the model. Invoke never
// returns an error or panics across the boundary: every failure is converted
// into a structured JSON payload the model can read, because an unhandled
// error here would tear down the whole audio session.
//
// A proxy is bound to one session's identifiers at creation time.
type ToolProxy struct {
	exec      ToolExecutor
	breaker   *resilience.CircuitBreaker
	metrics   *observe.Metrics
	sessionID string
	callerID  string
	timeout   time.Duration
}

// NewToolProxy creates a proxy bound to the given session and caller
// identifiers. A nil metrics falls back to [observe.DefaultMetrics].
func NewToolProxy(exec ToolExecutor, sessionID, callerID string, metrics *observe.Metrics) *ToolProxy {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &ToolProxy{
		exec: exec,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "tool-proxy",
		}),
		metrics:   metrics,
		sessionID: sessionID,
		callerID:  callerID,
		timeout:   defaultToolTimeout,
	}
}

// Invoke runs one tool call and returns the output string for the model. On
// any failure the returned string is a JSON error payload, never an empty
// string, so the model always has something to respond to.
func (p *ToolProxy) Invoke(ctx context.Context, name, arguments string) (out string) {
	correlationID := uuid.NewString()
	log := slog.With("tool", name, "correlation_id", correlationID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("tool execution panicked", "panic", r)
			out = errorPayload("tool execution failed")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "tool.execute")
	defer span.End()

	start := time.Now()
	var result string
	err := p.breaker.Execute(func() error {
		var execErr error
		result, execErr = p.exec.ExecuteTool(ctx, realtime.ToolCallRequest{
			Name:          name,
			Arguments:     arguments,
			SessionID:     p.sessionID,
			CallerID:      p.callerID,
			CorrelationID: correlationID,
		})
		return execErr
	})
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordToolCall(ctx, name, status)
	p.metrics.ToolExecutionDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(observe.Attr("tool", name)))

	if err != nil {
		log.Warn("tool execution failed", "err", err, "duration", duration)
		return errorPayload(err.Error())
	}

	log.Info("tool executed", "duration", duration)
	return result
}

// errorPayload builds the structured error JSON handed back to the model in
// place of a tool result.
func errorPayload(msg string) string {
	data, err := json.Marshal(map[string]any{
		"error":   true,
		"message": msg,
	})
	if err != nil {
		return `{"error":true,"message":"tool execution failed"}`
	}
	return string(data)
}
