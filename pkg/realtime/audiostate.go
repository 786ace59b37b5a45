package realtime

import "sync"

// TurnTracker is the audio turn state machine. It tracks who currently holds
// the conversational floor, driven exclusively by normalized events:
//
//	speech started  → listening
//	speech stopped  → thinking
//	model audio on  → speaking
//	model audio off / interrupted → idle
//
// The tracker has no effect on the connection lifecycle and resets to idle
// whenever the connection leaves the connected state.
//
// TurnTracker is safe for concurrent use.
type TurnTracker struct {
	mu    sync.Mutex
	state AudioState
}

// NewTurnTracker returns a tracker in the idle state.
func NewTurnTracker() *TurnTracker {
	return &TurnTracker{state: AudioIdle}
}

// State returns the current audio state.
func (t *TurnTracker) State() AudioState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Apply feeds one normalized event into the machine. It returns the state
// after the event and whether the event caused a transition. Events that do
// not drive turn-taking leave the state untouched.
func (t *TurnTracker) Apply(ev Event) (AudioState, bool) {
	var next AudioState
	switch ev.Kind {
	case KindSpeechStarted:
		next = AudioListening
	case KindSpeechStopped:
		next = AudioThinking
	case KindAudioStart:
		next = AudioSpeaking
	case KindAudioStopped, KindAudioInterrupted:
		next = AudioIdle
	default:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.state, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == next {
		return t.state, false
	}
	t.state = next
	return t.state, true
}

// Interrupt forces the machine to idle, mirroring an explicit user interrupt
// before the server's audio_interrupted event arrives. Returns true if the
// state changed.
func (t *TurnTracker) Interrupt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == AudioIdle {
		return false
	}
	t.state = AudioIdle
	return true
}

// Reset returns the machine to idle without reporting a transition. Called
// on disconnect and reconnect.
func (t *TurnTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = AudioIdle
}
