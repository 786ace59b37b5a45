package realtime_test

import (
	"reflect"
	"testing"

	"github.com/nmellis/casavox/pkg/realtime"
)

func translate(t *testing.T, f realtime.Frame) (realtime.Frame, bool) {
	t.Helper()
	return realtime.WireAdapterV1{}.Translate(f)
}

func session(t *testing.T, f realtime.Frame) map[string]any {
	t.Helper()
	s, ok := f["session"].(map[string]any)
	if !ok {
		t.Fatalf("frame has no session payload: %v", f)
	}
	return s
}

func TestTranslate_PassthroughNonSessionFrames(t *testing.T) {
	t.Parallel()

	in := realtime.Frame{"type": "response.create"}
	out, ok := translate(t, in)
	if !ok {
		t.Fatal("non-session frame should not be suppressed")
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("frame was modified: got %v, want %v", out, in)
	}
}

func TestTranslate_SuppressesEmptySessionUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame realtime.Frame
	}{
		{"no session key", realtime.Frame{"type": "session.update"}},
		{"empty session", realtime.Frame{"type": "session.update", "session": map[string]any{}}},
		{"unrecognized fields only", realtime.Frame{
			"type":    "session.update",
			"session": map[string]any{"output_modalities": []string{"audio"}},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, ok := translate(t, tt.frame); ok {
				t.Error("empty session.update should be suppressed")
			}
		})
	}
}

func TestTranslate_ForcesModalities(t *testing.T) {
	t.Parallel()

	out, ok := translate(t, realtime.Frame{
		"type":    "session.update",
		"session": map[string]any{"instructions": "hi"},
	})
	if !ok {
		t.Fatal("frame was suppressed")
	}
	got := session(t, out)["modalities"]
	if !reflect.DeepEqual(got, []string{"audio", "text"}) {
		t.Errorf("modalities = %v; want [audio text]", got)
	}
}

func TestTranslate_VoiceFromNestedAudioOutput(t *testing.T) {
	t.Parallel()

	out, ok := translate(t, realtime.Frame{
		"type": "session.update",
		"session": map[string]any{
			"audio": map[string]any{
				"output": map[string]any{"voice": "coral"},
			},
		},
	})
	if !ok {
		t.Fatal("frame was suppressed")
	}
	if v := session(t, out)["voice"]; v != "coral" {
		t.Errorf("voice = %v; want coral", v)
	}
}

func TestTranslate_FlatVoiceWins(t *testing.T) {
	t.Parallel()

	out, ok := translate(t, realtime.Frame{
		"type": "session.update",
		"session": map[string]any{
			"voice": "sage",
			"audio": map[string]any{
				"output": map[string]any{"voice": "coral"},
			},
		},
	})
	if !ok {
		t.Fatal("frame was suppressed")
	}
	if v := session(t, out)["voice"]; v != "sage" {
		t.Errorf("voice = %v; want sage", v)
	}
}

func TestTranslate_TurnDetectionNormalized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		session map[string]any
	}{
		{"flat", map[string]any{
			"turn_detection": map[string]any{
				"threshold":           0.6,
				"silence_duration_ms": 700,
			},
		}},
		{"nested under audio.input", map[string]any{
			"audio": map[string]any{
				"input": map[string]any{
					"turn_detection": map[string]any{
						"threshold":           0.6,
						"silence_duration_ms": 700,
					},
				},
			},
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, ok := translate(t, realtime.Frame{"type": "session.update", "session": tt.session})
			if !ok {
				t.Fatal("frame was suppressed")
			}
			td, ok := session(t, out)["turn_detection"].(map[string]any)
			if !ok {
				t.Fatal("missing turn_detection")
			}
			if td["type"] != "server_vad" {
				t.Errorf("type = %v; want server_vad", td["type"])
			}
			if td["create_response"] != true {
				t.Error("create_response must be forced true")
			}
			if td["threshold"] != 0.6 {
				t.Errorf("threshold = %v; want 0.6", td["threshold"])
			}
			if td["silence_duration_ms"] != 700 {
				t.Errorf("silence_duration_ms = %v; want 700", td["silence_duration_ms"])
			}
		})
	}
}

func TestTranslate_CreateResponseOverriddenEvenWhenFalse(t *testing.T) {
	t.Parallel()

	out, ok := translate(t, realtime.Frame{
		"type": "session.update",
		"session": map[string]any{
			"turn_detection": map[string]any{"create_response": false},
		},
	})
	if !ok {
		t.Fatal("frame was suppressed")
	}
	td := session(t, out)["turn_detection"].(map[string]any)
	if td["create_response"] != true {
		t.Error("create_response=false must be overridden to true")
	}
}

func TestTranslate_ToolsAndToolChoicePassThrough(t *testing.T) {
	t.Parallel()

	tools := []any{map[string]any{"type": "function", "name": "list_properties"}}
	out, ok := translate(t, realtime.Frame{
		"type": "session.update",
		"session": map[string]any{
			"tools":       tools,
			"tool_choice": "auto",
			"temperature": 0.7,
		},
	})
	if !ok {
		t.Fatal("frame was suppressed")
	}
	s := session(t, out)
	if !reflect.DeepEqual(s["tools"], tools) {
		t.Errorf("tools = %v; want %v", s["tools"], tools)
	}
	if s["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v; want auto", s["tool_choice"])
	}
	if s["temperature"] != 0.7 {
		t.Errorf("temperature = %v; want 0.7", s["temperature"])
	}
}

func TestTranslate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := realtime.Frame{
		"type": "session.update",
		"session": map[string]any{
			"voice":          "sage",
			"turn_detection": map[string]any{"threshold": 0.5},
		},
	}
	if _, ok := translate(t, in); !ok {
		t.Fatal("frame was suppressed")
	}

	s := in["session"].(map[string]any)
	if _, exists := s["modalities"]; exists {
		t.Error("input frame was mutated: modalities added")
	}
	td := s["turn_detection"].(map[string]any)
	if _, exists := td["create_response"]; exists {
		t.Error("input turn_detection was mutated")
	}
}

func TestSessionUpdateFrame_RoundTripsThroughAdapter(t *testing.T) {
	t.Parallel()

	cfg := realtime.SessionConfig{
		Model:        "gpt-4o-realtime-preview",
		Voice:        "sage",
		Instructions: "You help investors.",
		Sampling:     realtime.SamplingParams{Temperature: 0.8},
		Features:     realtime.FeatureFlags{VADThreshold: 0.5, SilenceDurationMs: 500},
		Tools:        []realtime.ToolDefinition{{Name: "list_properties", Description: "Lists properties"}},
	}

	out, ok := translate(t, realtime.SessionUpdateFrame(cfg))
	if !ok {
		t.Fatal("session update frame for a full config must not be suppressed")
	}
	s := session(t, out)
	if s["voice"] != "sage" {
		t.Errorf("voice = %v; want sage", s["voice"])
	}
	if s["instructions"] != "You help investors." {
		t.Errorf("instructions = %v", s["instructions"])
	}
	if s["temperature"] != 0.8 {
		t.Errorf("temperature = %v; want 0.8", s["temperature"])
	}
	if s["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v; want auto", s["tool_choice"])
	}
	td, _ := s["turn_detection"].(map[string]any)
	if td == nil || td["create_response"] != true {
		t.Errorf("turn_detection = %v; want create_response true", td)
	}
}
