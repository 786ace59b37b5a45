package realtime

// ProtocolAdapter rewrites outbound wire frames from the internal SDK
// representation into the shape the remote realtime endpoint actually
// accepts. The two have diverged across SDK versions (nested
// audio.input/output vs flat voice/turn_detection, output_modalities vs
// modalities), so every outbound frame passes through Translate before it
// reaches the socket.
//
// Translate returns the rewritten frame and true, or nil and false when the
// frame should be suppressed entirely (never send an empty session update).
// Implementations must be pure: no I/O, no mutation of the input frame.
type ProtocolAdapter interface {
	Translate(f Frame) (Frame, bool)
}

// WireAdapterV1 targets the current GA wire shape of the realtime endpoint.
// If the vendor protocol shifts again, add a new adapter version and swap it
// at the transport construction site; nothing else changes.
type WireAdapterV1 struct{}

// Translate implements [ProtocolAdapter]. Frames other than session.update
// pass through untouched. For session.update frames:
//
//   - modalities is always ["audio","text"]: the endpoint silently fails to
//     produce speech for audio-only configurations, so this is a hard-coded
//     normalization rather than a passthrough.
//   - turn_detection is synthesized from whichever of the flat or nested
//     (audio.input.turn_detection) field is present, with create_response
//     forced true — the model will not emit a spoken reply otherwise.
//   - instructions, temperature, tools, and tool_choice pass through.
//   - a session payload with no recognized fields is suppressed.
func (WireAdapterV1) Translate(f Frame) (Frame, bool) {
	if f.Type() != "session.update" {
		return f, true
	}

	in, _ := f["session"].(map[string]any)
	if len(in) == 0 {
		return nil, false
	}

	out := make(map[string]any)

	if v, ok := in["instructions"].(string); ok && v != "" {
		out["instructions"] = v
	}
	if v := sessionVoice(in); v != "" {
		out["voice"] = v
	}
	if v, ok := numberAt(in, "temperature"); ok {
		out["temperature"] = v
	}
	if v, ok := in["tools"]; ok {
		out["tools"] = v
	}
	if v, ok := in["tool_choice"]; ok {
		out["tool_choice"] = v
	}
	if td := sessionTurnDetection(in); td != nil {
		out["turn_detection"] = td
	}

	if len(out) == 0 {
		return nil, false
	}

	// Hard-coded: audio-only configurations are rejected upstream.
	out["modalities"] = []string{"audio", "text"}

	return Frame{"type": "session.update", "session": out}, true
}

// sessionVoice extracts the voice name from the flat field or the nested
// audio.output.voice location used by newer SDK builds.
func sessionVoice(in map[string]any) string {
	if v, ok := in["voice"].(string); ok && v != "" {
		return v
	}
	if v, ok := mapPath(in, "audio", "output")["voice"].(string); ok {
		return v
	}
	return ""
}

// sessionTurnDetection normalizes the turn detection block from either the
// flat or nested location into the wire shape
// {type, threshold, prefix_padding_ms, silence_duration_ms, create_response}.
// Returns nil when neither location carries a turn detection block.
func sessionTurnDetection(in map[string]any) map[string]any {
	src, _ := in["turn_detection"].(map[string]any)
	if src == nil {
		src, _ = mapPath(in, "audio", "input")["turn_detection"].(map[string]any)
	}
	if src == nil {
		return nil
	}

	out := map[string]any{
		"type":            "server_vad",
		"create_response": true,
	}
	if t, ok := src["type"].(string); ok && t != "" {
		out["type"] = t
	}
	if v, ok := numberAt(src, "threshold"); ok {
		out["threshold"] = v
	}
	if v, ok := numberAt(src, "prefix_padding_ms"); ok {
		out["prefix_padding_ms"] = int(v)
	}
	if v, ok := numberAt(src, "silence_duration_ms"); ok {
		out["silence_duration_ms"] = int(v)
	}
	return out
}

// mapPath walks nested string-keyed maps and returns the map at the end of
// the path, or an empty map when any step is missing.
func mapPath(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	return cur
}

// numberAt reads a numeric field that may arrive as float64 (JSON decode),
// int, or float32 depending on who built the frame.
func numberAt(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// SessionUpdateFrame builds the SDK-internal session.update frame for cfg.
// The frame uses the nested audio.input/output representation; the
// [ProtocolAdapter] rewrites it into the wire shape before sending.
func SessionUpdateFrame(cfg SessionConfig) Frame {
	session := map[string]any{
		"output_modalities": []string{"audio"},
		"audio": map[string]any{
			"output": map[string]any{
				"voice": cfg.Voice,
			},
			"input": map[string]any{
				"turn_detection": map[string]any{
					"type":                "server_vad",
					"threshold":           cfg.Features.VADThreshold,
					"prefix_padding_ms":   300,
					"silence_duration_ms": cfg.Features.SilenceDurationMs,
				},
			},
		},
	}
	if cfg.Instructions != "" {
		session["instructions"] = cfg.Instructions
	}
	if cfg.Sampling.Temperature != 0 {
		session["temperature"] = cfg.Sampling.Temperature
	}
	if len(cfg.Tools) > 0 {
		tools := make([]any, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			tools = append(tools, map[string]any{
				"type":        "function",
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		session["tools"] = tools
		session["tool_choice"] = "auto"
	}
	return Frame{"type": "session.update", "session": session}
}
