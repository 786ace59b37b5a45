package voice_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nmellis/casavox/internal/observe"
	"github.com/nmellis/casavox/internal/voice"
	"github.com/nmellis/casavox/pkg/realtime"
)

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// executorFunc adapts a function to the ToolExecutor interface.
type executorFunc func(ctx context.Context, req realtime.ToolCallRequest) (string, error)

func (f executorFunc) ExecuteTool(ctx context.Context, req realtime.ToolCallRequest) (string, error) {
	return f(ctx, req)
}

func TestToolProxy_Success(t *testing.T) {
	t.Parallel()

	var got realtime.ToolCallRequest
	exec := executorFunc(func(_ context.Context, req realtime.ToolCallRequest) (string, error) {
		got = req
		return `{"count":3}`, nil
	})

	p := voice.NewToolProxy(exec, "sess-1", "user-1", newTestMetrics(t))
	out := p.Invoke(context.Background(), "list_properties", `{"city":"Austin"}`)

	if out != `{"count":3}` {
		t.Errorf("output = %q", out)
	}
	if got.Name != "list_properties" || got.Arguments != `{"city":"Austin"}` {
		t.Errorf("request = %+v", got)
	}
	if got.SessionID != "sess-1" || got.CallerID != "user-1" {
		t.Errorf("identifiers = %+v", got)
	}
	if got.CorrelationID == "" {
		t.Error("correlation ID should be generated")
	}
}

func TestToolProxy_FreshCorrelationIDPerCall(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	exec := executorFunc(func(_ context.Context, req realtime.ToolCallRequest) (string, error) {
		seen[req.CorrelationID] = true
		return "", nil
	})

	p := voice.NewToolProxy(exec, "s", "u", newTestMetrics(t))
	for i := 0; i < 3; i++ {
		p.Invoke(context.Background(), "t", "{}")
	}
	if len(seen) != 3 {
		t.Errorf("got %d distinct correlation IDs; want 3", len(seen))
	}
}

func TestToolProxy_ErrorBecomesStructuredPayload(t *testing.T) {
	t.Parallel()

	exec := executorFunc(func(context.Context, realtime.ToolCallRequest) (string, error) {
		return "", errors.New("backend exploded")
	})

	p := voice.NewToolProxy(exec, "s", "u", newTestMetrics(t))
	out := p.Invoke(context.Background(), "t", "{}")

	var payload struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("output %q is not JSON: %v", out, err)
	}
	if !payload.Error {
		t.Error("payload.error should be true")
	}
	if !strings.Contains(payload.Message, "backend exploded") {
		t.Errorf("message = %q", payload.Message)
	}
}

func TestToolProxy_PanicRecovered(t *testing.T) {
	t.Parallel()

	exec := executorFunc(func(context.Context, realtime.ToolCallRequest) (string, error) {
		panic("boom")
	})

	p := voice.NewToolProxy(exec, "s", "u", newTestMetrics(t))
	out := p.Invoke(context.Background(), "t", "{}")

	if !strings.Contains(out, `"error":true`) {
		t.Errorf("panic should produce an error payload, got %q", out)
	}
}

func TestToolProxy_BreakerShortCircuitsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	exec := executorFunc(func(context.Context, realtime.ToolCallRequest) (string, error) {
		calls++
		return "", errors.New("down")
	})

	p := voice.NewToolProxy(exec, "s", "u", newTestMetrics(t))
	for i := 0; i < 10; i++ {
		out := p.Invoke(context.Background(), "t", "{}")
		if !strings.Contains(out, `"error":true`) {
			t.Fatalf("expected error payload, got %q", out)
		}
	}
	if calls >= 10 {
		t.Errorf("breaker never opened: executor called %d times", calls)
	}
}
