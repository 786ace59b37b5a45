// Package realtime contains the protocol-level building blocks for a
// bidirectional voice session with a hosted speech model: the session
// configuration schema, the wire-frame protocol adapter, the inbound event
// normalizer, the audio turn tracker, the WebSocket transport, and the
// lifecycle-aware audio output sink.
//
// The connection lifecycle itself (state machine, reconnection, tool call
// routing) lives in internal/voice; this package is deliberately limited to
// pure types and protocol plumbing so each piece is unit-testable in
// isolation.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ConnectionStatus is the top-level lifecycle state of a voice session.
// Exactly one status exists per session facade; transitions are the only
// place it changes.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// IsValid reports whether s is a recognised connection status.
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting, StatusError:
		return true
	}
	return false
}

// AudioState tracks who currently holds the conversational floor. It is
// independent of [ConnectionStatus] but only meaningful while connected.
type AudioState string

const (
	// AudioIdle means nobody is speaking and no response is pending.
	AudioIdle AudioState = "idle"

	// AudioListening means user speech has been detected by server-side VAD.
	AudioListening AudioState = "listening"

	// AudioThinking means the user stopped speaking and the model has not yet
	// produced audio.
	AudioThinking AudioState = "thinking"

	// AudioSpeaking means model audio is flowing.
	AudioSpeaking AudioState = "speaking"
)

// Role identifies the speaker of a transcript or message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SamplingParams holds model sampling knobs. The penalty fields are pointers
// because the backend config endpoint may omit them entirely, which must be
// distinguishable from an explicit zero.
type SamplingParams struct {
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty" yaml:"presence_penalty,omitempty"`
}

// FeatureFlags holds per-session behavioural switches sourced from the
// backend configuration endpoint.
type FeatureFlags struct {
	// VADThreshold is the server-side voice activity detection sensitivity,
	// in [0, 1].
	VADThreshold float64 `json:"vadThreshold" yaml:"vad_threshold"`

	// SilenceDurationMs is how long the user must be silent before the model
	// considers the turn over.
	SilenceDurationMs int `json:"silenceDurationMs" yaml:"silence_duration_ms"`

	// BargeInEnabled allows the user to interrupt the model mid-response.
	BargeInEnabled bool `json:"bargeInEnabled" yaml:"barge_in_enabled"`

	// InputTranscription enables transcription of the user's speech.
	InputTranscription bool `json:"inputTranscription" yaml:"input_transcription"`

	// SupportedLocales lists the BCP 47 locales the assistant may respond in.
	SupportedLocales []string `json:"supportedLocales" yaml:"supported_locales"`
}

// ToolDefinition is a declarative tool schema sourced from backend
// configuration. Immutable for the lifetime of a session.
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parametersSchema" yaml:"parameters"`
}

// SessionConfig is the full parameter set for one voice session. It is
// immutable once a connection attempt starts; callers mutate it only between
// sessions.
type SessionConfig struct {
	Model        string           `json:"model" yaml:"model"`
	Voice        string           `json:"voice" yaml:"voice"`
	Instructions string           `json:"systemInstructions" yaml:"instructions"`
	Sampling     SamplingParams   `json:"sampling" yaml:"sampling"`
	Features     FeatureFlags     `json:"features" yaml:"features"`
	Tools        []ToolDefinition `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// TokenGrant is a short-lived connection credential minted per connection
// attempt. It is never persisted beyond process memory.
type TokenGrant struct {
	Token     string
	SessionID string
	ThreadID  string
	ExpiresIn time.Duration
}

// TranscriptEvent is a partial or final piece of transcript for one role.
// Non-final events accumulate client-side; a final event resets the buffer
// for that role.
type TranscriptEvent struct {
	Role  Role
	Text  string
	Final bool
}

// Message is the externally emitted conversation record derived from
// finalized transcript events.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Partial   bool
}

// ToolCallRequest carries one model-initiated tool invocation to the backend.
// The correlation ID is generated per call and never reused.
type ToolCallRequest struct {
	Name          string `json:"name"`
	Arguments     string `json:"arguments"`
	SessionID     string `json:"sessionId"`
	CallerID      string `json:"userId"`
	CorrelationID string `json:"correlationId"`
}

// Frame is one raw JSON wire frame exchanged with the remote realtime
// endpoint. The shape is deliberately untyped: the wire protocol is a moving
// target and the [ProtocolAdapter] reconciles the differences.
type Frame map[string]any

// Type returns the frame's "type" discriminator, or "" if absent.
func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}

// Clone returns a shallow copy of the frame. Nested maps are shared.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ── Error taxonomy ─────────────────────────────────────────────────────────────

// ErrCredentialFormat indicates the minted token did not match the required
// credential format. Fatal and non-retryable: no transport is ever opened
// with a malformed grant.
var ErrCredentialFormat = errors.New("realtime: credential format invalid")

// ErrTokenAcquisition indicates the token endpoint could not be reached or
// returned an error. Fatal for the current connect call.
var ErrTokenAcquisition = errors.New("realtime: token acquisition failed")

// ErrNotConnected is returned by facade operations that require an
// established session.
var ErrNotConnected = errors.New("realtime: not connected")

// SessionError is a vendor error envelope unwrapped to a flat message plus
// optional code. Raw preserves the original payload for diagnostics.
type SessionError struct {
	Message string
	Code    string
	Raw     json.RawMessage
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s (code=%s)", e.Message, e.Code)
	}
	return "realtime: " + e.Message
}
