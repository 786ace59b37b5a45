package realtime

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strings"
)

// EventKind discriminates the closed set of domain events produced by the
// [Normalizer]. Downstream consumers switch over this set instead of
// inspecting vendor frame shapes directly.
type EventKind int

const (
	// KindAudioStart signals model audio has started flowing.
	KindAudioStart EventKind = iota

	// KindAudioStopped signals model audio has finished.
	KindAudioStopped

	// KindAudioInterrupted signals the model's response was cut off,
	// typically by barge-in.
	KindAudioInterrupted

	// KindSpeechStarted signals server-side VAD detected user speech.
	KindSpeechStarted

	// KindSpeechStopped signals server-side VAD detected the user stopped.
	KindSpeechStopped

	// KindResponseStarted signals the model began generating a response.
	KindResponseStarted

	// KindResponseDone signals the model finished a response turn.
	KindResponseDone

	// KindAssistantAudio carries one decoded PCM16 audio chunk.
	KindAssistantAudio

	// KindAssistantText carries a partial or final assistant transcript.
	KindAssistantText

	// KindUserText carries a final user speech transcription.
	KindUserText

	// KindToolCall carries a model-initiated tool invocation.
	KindToolCall

	// KindToolApproval carries a tool approval request awaiting a response.
	KindToolApproval

	// KindToolStart and KindToolEnd bracket a tool execution on the agent
	// side; they are informational only.
	KindToolStart
	KindToolEnd

	// KindError carries a normalized vendor error.
	KindError

	// KindVolume carries an output audio level sample in [0, 1].
	KindVolume
)

// Event is the tagged-union domain event. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind EventKind

	// Text and Final are set for KindAssistantText and KindUserText.
	Text  string
	Final bool

	// Audio is set for KindAssistantAudio.
	Audio []byte

	// Level is set for KindVolume.
	Level float64

	// Name, CallID, and Arguments are set for tool events.
	Name      string
	CallID    string
	Arguments string

	// ApprovalID is set for KindToolApproval.
	ApprovalID string

	// Err is set for KindError.
	Err *SessionError
}

// Normalizer consumes heterogeneous inbound frames and maps them onto the
// closed [Event] set. It owns the rolling assistant transcript buffer:
// partial deltas accumulate until a final event flushes the buffer.
//
// Normalizer is not safe for concurrent use; the transport's receive loop is
// the only caller.
type Normalizer struct {
	assistantBuf strings.Builder
}

// AssistantBuffer returns the current contents of the rolling assistant
// transcript buffer. Exposed for observability; the buffer resets when a
// final transcript arrives.
func (n *Normalizer) AssistantBuffer() string {
	return n.assistantBuf.String()
}

// Reset clears the rolling transcript buffer. Called when a connection
// leaves the connected state so a reconnect starts clean.
func (n *Normalizer) Reset() {
	n.assistantBuf.Reset()
}

// Normalize maps one raw frame onto zero or more domain events. Unrecognized
// frame types produce no events — the wire protocol grows new event types
// regularly and unknown ones must not break the session.
func (n *Normalizer) Normalize(f Frame) []Event {
	switch f.Type() {
	case "transport_event":
		// Wrapper around a raw protocol frame; unwrap and recurse.
		if inner, ok := f["event"].(map[string]any); ok {
			return n.Normalize(Frame(inner))
		}
		return nil

	case "audio_start":
		return []Event{{Kind: KindAudioStart}}
	case "audio_stopped":
		return []Event{{Kind: KindAudioStopped}}
	case "audio_interrupted":
		return []Event{{Kind: KindAudioInterrupted}}

	case "input_audio_buffer.speech_started":
		return []Event{{Kind: KindSpeechStarted}}
	case "input_audio_buffer.speech_stopped":
		return []Event{{Kind: KindSpeechStopped}}

	case "response.created":
		return []Event{{Kind: KindResponseStarted}}

	case "response.done":
		return n.normalizeResponseDone(f)

	case "response.audio.delta":
		return normalizeAudioDelta(f)

	case "response.audio_transcript.delta":
		delta, _ := f["delta"].(string)
		if delta == "" {
			return nil
		}
		// Partials carry the whole transcript so far, not the raw delta, so
		// consumers can render them without tracking accumulation themselves.
		n.assistantBuf.WriteString(delta)
		return []Event{{Kind: KindAssistantText, Text: n.assistantBuf.String()}}

	case "response.audio_transcript.done":
		// The server-provided full transcript wins over the local buffer
		// when both are present.
		text, _ := f["transcript"].(string)
		if text == "" {
			text = n.assistantBuf.String()
		}
		n.assistantBuf.Reset()
		if text == "" {
			return nil
		}
		return []Event{{Kind: KindAssistantText, Text: text, Final: true}}

	case "history_added", "history_updated":
		return n.normalizeHistory(f)

	case "conversation.item.input_audio_transcription.completed":
		text, _ := f["transcript"].(string)
		if text == "" {
			return nil
		}
		return []Event{{Kind: KindUserText, Text: text, Final: true}}

	case "conversation.item.input_audio_transcription.failed":
		return []Event{{Kind: KindError, Err: unwrapError(f)}}

	case "response.function_call_arguments.done":
		name, _ := f["name"].(string)
		args, _ := f["arguments"].(string)
		callID, _ := f["call_id"].(string)
		if name == "" {
			return nil
		}
		return []Event{{Kind: KindToolCall, Name: name, CallID: callID, Arguments: args}}

	case "tool_approval_requested":
		id, _ := f["approval_request_id"].(string)
		name, _ := f["tool_name"].(string)
		return []Event{{Kind: KindToolApproval, ApprovalID: id, Name: name}}

	case "agent_tool_start":
		name, _ := f["tool_name"].(string)
		return []Event{{Kind: KindToolStart, Name: name}}
	case "agent_tool_end":
		name, _ := f["tool_name"].(string)
		return []Event{{Kind: KindToolEnd, Name: name}}

	case "error":
		return []Event{{Kind: KindError, Err: unwrapError(f)}}
	}

	return nil
}

// normalizeResponseDone emits KindResponseDone, plus KindError when the
// response carries failure detail.
func (n *Normalizer) normalizeResponseDone(f Frame) []Event {
	events := []Event{{Kind: KindResponseDone}}
	resp, _ := f["response"].(map[string]any)
	if resp == nil {
		return events
	}
	if status, _ := resp["status"].(string); status == "failed" {
		details, _ := resp["status_details"].(map[string]any)
		events = append(events, Event{Kind: KindError, Err: unwrapError(Frame(details))})
	}
	return events
}

// normalizeHistory extracts assistant text from nested history items. Items
// without transcript or text content are ignored.
func (n *Normalizer) normalizeHistory(f Frame) []Event {
	item, _ := f["item"].(map[string]any)
	if item == nil {
		return nil
	}
	role, _ := item["role"].(string)
	if role != string(RoleAssistant) {
		return nil
	}
	contents, _ := item["content"].([]any)
	for _, c := range contents {
		part, _ := c.(map[string]any)
		if part == nil {
			continue
		}
		text, _ := part["transcript"].(string)
		if text == "" {
			text, _ = part["text"].(string)
		}
		if text != "" {
			n.assistantBuf.Reset()
			return []Event{{Kind: KindAssistantText, Text: text, Final: true}}
		}
	}
	return nil
}

// normalizeAudioDelta decodes a base64 PCM16 chunk and emits the audio event
// plus a volume sample derived from the chunk's RMS level.
func normalizeAudioDelta(f Frame) []Event {
	delta, _ := f["delta"].(string)
	if delta == "" {
		return nil
	}
	pcm, err := base64.StdEncoding.DecodeString(delta)
	if err != nil || len(pcm) == 0 {
		return nil
	}
	return []Event{
		{Kind: KindAssistantAudio, Audio: pcm},
		{Kind: KindVolume, Level: pcm16Level(pcm)},
	}
}

// pcm16Level computes the normalized RMS level of little-endian PCM16
// samples, in [0, 1].
func pcm16Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	count := len(pcm) / 2
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(count))
}

// unwrapError flattens a possibly-nested vendor error envelope
// ({"error":{"error":{"message":...}}} vs {"error":{"message":...}} vs
// {"message":...}) into a [SessionError], preserving the raw payload.
func unwrapError(f Frame) *SessionError {
	raw, _ := json.Marshal(map[string]any(f))
	se := &SessionError{Message: "unknown error", Raw: raw}

	node := map[string]any(f)
	for node != nil {
		if msg, _ := node["message"].(string); msg != "" {
			se.Message = msg
			if code, _ := node["code"].(string); code != "" {
				se.Code = code
			}
		}
		next, _ := node["error"].(map[string]any)
		node = next
	}
	return se
}
