package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nmellis/casavox/pkg/realtime"
)

// toolResponse is the wire shape of POST /realtime/tools/execute. Output is
// untyped because backend tools return arbitrary JSON.
type toolResponse struct {
	Output json.RawMessage `json:"output"`
}

// ExecuteTool performs one proxied tool invocation against the backend and
// returns the output serialized as a string. JSON string outputs are
// unquoted; everything else is passed through as raw JSON text.
func (c *Client) ExecuteTool(ctx context.Context, req realtime.ToolCallRequest) (string, error) {
	var resp toolResponse
	if err := c.doJSON(ctx, "POST", "/realtime/tools/execute", req, &resp); err != nil {
		return "", fmt.Errorf("execute tool %q: %w", req.Name, err)
	}

	if len(resp.Output) == 0 {
		return "", nil
	}

	// A plain string output is returned verbatim, not as a quoted JSON
	// literal: the model reads the result as prose.
	var s string
	if err := json.Unmarshal(resp.Output, &s); err == nil {
		return s, nil
	}
	return string(resp.Output), nil
}
