package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nmellis/casavox/internal/observe"
	"github.com/nmellis/casavox/internal/resilience"
	"github.com/nmellis/casavox/pkg/realtime"
)

// TokenSource mints a short-lived connection credential per attempt.
type TokenSource interface {
	MintToken(ctx context.Context, userID, tenantID string) (realtime.TokenGrant, error)
}

// ConfigSource resolves the effective session configuration. Implementations
// must be best-effort: on failure they return the defaults unchanged.
type ConfigSource interface {
	ResolveConfig(ctx context.Context, defaults realtime.SessionConfig) realtime.SessionConfig
}

// Callbacks are the event hooks a Manager drives. All fields are optional;
// nil hooks are skipped. Hooks are invoked from the manager's internal
// goroutines and must not block.
type Callbacks struct {
	// OnStatus fires on every connection status transition.
	OnStatus func(realtime.ConnectionStatus)

	// OnAudioState fires on every audio turn transition.
	OnAudioState func(realtime.AudioState)

	// OnMessage fires for each partial or final transcript message.
	OnMessage func(realtime.Message)

	// OnAudio fires for each model PCM16 chunk, in arrival order.
	OnAudio func(pcm []byte)

	// OnVolume fires with the output level in [0, 1] per audio chunk.
	OnVolume func(level float64)

	// OnError fires for vendor session errors and connection drops.
	OnError func(error)
}

// ErrManagerClosed is returned by operations on a closed Manager.
var ErrManagerClosed = errors.New("voice: manager closed")

// Option is a functional option for configuring a [Manager].
type Option func(*Manager)

// WithDialer overrides the transport dialer. Used in tests to substitute an
// in-memory transport.
func WithDialer(d realtime.Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithCallbacks sets the event hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(m *Manager) { m.cb = cb }
}

// WithMetrics overrides the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithRetryPolicy overrides the reconnection policy.
func WithRetryPolicy(p *resilience.RetryPolicy) Option {
	return func(m *Manager) { m.retry = p }
}

// WithIdentity sets the caller identifiers forwarded to the token endpoint
// and tool invocations.
func WithIdentity(userID, tenantID string) Option {
	return func(m *Manager) {
		m.userID = userID
		m.tenantID = tenantID
	}
}

// WithDefaults sets the local default session configuration that remote
// config is merged over.
func WithDefaults(cfg realtime.SessionConfig) Option {
	return func(m *Manager) { m.defaults = cfg }
}

// Manager is the session facade: the single entry point for connecting,
// disconnecting, and interacting with a live voice session. It owns the
// connection state machine and serializes all lifecycle transitions.
//
// Every connection attempt carries a generation number. Any asynchronous
// completion (dial result, inbound frame, tool result, reconnect timer) is
// discarded when its generation no longer matches the current one, so a
// disconnect or a newer connect cleanly supersedes in-flight work.
//
// All exported methods are safe for concurrent use.
type Manager struct {
	tokens  TokenSource
	configs ConfigSource
	exec    ToolExecutor
	dial    realtime.Dialer
	cb      Callbacks
	metrics *observe.Metrics
	retry   *resilience.RetryPolicy

	defaults realtime.SessionConfig
	userID   string
	tenantID string

	tracker *realtime.TurnTracker
	sink    *realtime.AudioSink

	mu         sync.Mutex
	status     realtime.ConnectionStatus
	generation uint64
	transport  realtime.Transport
	proxy      *ToolProxy
	grant      realtime.TokenGrant
	lastErr    error
	muted      bool
	timer      *time.Timer
	closed     bool
}

// NewManager creates a session manager. tokens is required; configs may be
// nil when no remote configuration endpoint exists.
func NewManager(tokens TokenSource, configs ConfigSource, exec ToolExecutor, opts ...Option) *Manager {
	m := &Manager{
		tokens:  tokens,
		configs: configs,
		exec:    exec,
		status:  realtime.StatusDisconnected,
		tracker: realtime.NewTurnTracker(),
		sink:    realtime.NewAudioSink(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.dial == nil {
		m.dial = realtime.NewWSDialer().Dial
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.retry == nil {
		m.retry = resilience.NewRetryPolicy(0, 0)
	}
	return m
}

// ── Facade operations ──────────────────────────────────────────────────────────

// Connect runs a connection attempt and blocks until it resolves: nil once
// the session is connected, the failure otherwise. A retryable failure still
// schedules automatic reconnection in the background before its error is
// returned; a credential format failure is returned without any retry. An
// explicit Connect re-arms the retry budget, so a session parked in the error
// state gets the full bounded reconnection policy again.
//
// Connect is single-flight: while a session is already connecting or
// connected the call is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	switch m.status {
	case realtime.StatusConnecting, realtime.StatusConnected:
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	m.retry.Reset()
	m.generation++
	gen := m.generation
	notify := m.setStatusLocked(realtime.StatusConnecting)
	m.mu.Unlock()

	notify()

	done := make(chan error, 1)
	go m.establish(ctx, gen, done)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect tears the session down and returns it to a clean disconnected
// state. Safe to call in any state; teardown failures are logged, never
// returned, so disconnect always succeeds from the caller's perspective.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.generation++
	t := m.transport
	m.transport = nil
	m.proxy = nil
	m.grant = realtime.TokenGrant{}
	m.lastErr = nil
	m.retry.Reset()
	notify := m.setStatusLocked(realtime.StatusDisconnected)
	m.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			slog.Warn("transport teardown failed", "err", err)
		}
	}
	m.sink.Drain()
	m.tracker.Reset()
	notify()
}

// Toggle connects when disconnected and disconnects otherwise.
func (m *Manager) Toggle(ctx context.Context) error {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()

	switch status {
	case realtime.StatusConnecting, realtime.StatusConnected, realtime.StatusReconnecting:
		m.Disconnect()
		return nil
	default:
		return m.Connect(ctx)
	}
}

// Close disconnects and permanently shuts the manager down. The audio output
// channel is closed; the manager cannot be reused.
func (m *Manager) Close() {
	m.Disconnect()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.sink.Close()
}

// SendMessage injects a user text message into the conversation and requests
// a model response.
func (m *Manager) SendMessage(text string) error {
	t, err := m.connectedTransport()
	if err != nil {
		return err
	}
	if err := t.Send(realtime.Frame{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": string(realtime.RoleUser),
			"content": []any{
				map[string]any{"type": "input_text", "text": text},
			},
		},
	}); err != nil {
		return fmt.Errorf("voice: send message: %w", err)
	}
	if err := t.Send(realtime.Frame{"type": "response.create"}); err != nil {
		return fmt.Errorf("voice: request response: %w", err)
	}
	return nil
}

// SendAudio forwards one microphone PCM16 chunk. Chunks are silently dropped
// while muted.
func (m *Manager) SendAudio(pcm []byte) error {
	m.mu.Lock()
	muted := m.muted
	m.mu.Unlock()
	if muted {
		return nil
	}

	t, err := m.connectedTransport()
	if err != nil {
		return err
	}
	return t.SendAudio(pcm)
}

// Interrupt cancels the in-flight model response, discards buffered output
// audio, and forces the audio state to idle.
func (m *Manager) Interrupt() error {
	t, err := m.connectedTransport()
	if err != nil {
		return err
	}

	sendErr := t.Send(realtime.Frame{"type": "response.cancel"})
	m.sink.Drain()
	if m.tracker.Interrupt() {
		m.notifyAudioState(realtime.AudioIdle)
	}
	if sendErr != nil {
		return fmt.Errorf("voice: interrupt: %w", sendErr)
	}
	return nil
}

// Mute sets the microphone mute flag. Muting is local: the connection stays
// up and model audio keeps playing.
func (m *Manager) Mute(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// ── Accessors ──────────────────────────────────────────────────────────────────

// Status returns the current connection status.
func (m *Manager) Status() realtime.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// AudioState returns the current audio turn state.
func (m *Manager) AudioState() realtime.AudioState {
	return m.tracker.State()
}

// Muted reports whether the microphone is muted.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// LastError returns the most recent session error, or nil. Cleared by
// Disconnect.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SessionID returns the backend session identifier of the current grant, or
// "" when disconnected.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grant.SessionID
}

// Output returns the model audio output channel. The channel lives for the
// whole manager lifetime and is closed by Close.
func (m *Manager) Output() <-chan []byte {
	return m.sink.Output()
}

// ── Connection lifecycle ───────────────────────────────────────────────────────

// signalDone delivers the outcome of a connection attempt to a waiting
// Connect call. Nil-safe (reconnect attempts have no waiter) and at most
// once per channel.
func signalDone(done chan<- error, err error) {
	if done == nil {
		return
	}
	select {
	case done <- err:
	default:
	}
}

// establish runs one connection attempt end to end: resolve config, mint a
// token, dial, then hand off to the receive loop. Any failure is routed
// through the retry policy; the outcome of the attempt is signalled on done.
func (m *Manager) establish(ctx context.Context, gen uint64, done chan<- error) {
	ctx, span := observe.StartSpan(ctx, "session.connect")
	defer span.End()
	start := time.Now()

	cfg := m.defaults
	if m.configs != nil {
		cfg = m.configs.ResolveConfig(ctx, m.defaults)
	}

	mintStart := time.Now()
	grant, err := m.tokens.MintToken(ctx, m.userID, m.tenantID)
	m.metrics.TokenMintDuration.Record(ctx, time.Since(mintStart).Seconds())
	if err != nil {
		m.connectFailed(ctx, gen, err)
		signalDone(done, err)
		return
	}

	t, err := m.dial(ctx, cfg, grant)
	if err != nil {
		m.connectFailed(ctx, gen, err)
		signalDone(done, err)
		return
	}

	m.mu.Lock()
	if gen != m.generation || m.closed {
		m.mu.Unlock()
		t.Close()
		signalDone(done, context.Canceled)
		return
	}
	m.transport = t
	m.grant = grant
	m.proxy = NewToolProxy(m.exec, grant.SessionID, m.userID, m.metrics)
	m.mu.Unlock()

	m.runLoop(gen, t, start, done)
}

// connectFailed records a failed attempt and either schedules a retry or
// parks the session in the error state. Credential format failures are never
// retried: retrying cannot fix a malformed token.
func (m *Manager) connectFailed(ctx context.Context, gen uint64, err error) {
	m.metrics.RecordConnectAttempt(ctx, "error")
	slog.Error("connection attempt failed", "err", err)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.lastErr = err

	var notify func()
	if errors.Is(err, realtime.ErrCredentialFormat) {
		notify = m.setStatusLocked(realtime.StatusError)
	} else {
		notify = m.scheduleRetryLocked()
	}
	m.mu.Unlock()

	notify()
	m.notifyError(err)
}

// runLoop consumes inbound frames until the transport ends. The transition
// to connected happens on the first inbound frame, not on dial success: only
// then has the server demonstrably accepted the session.
func (m *Manager) runLoop(gen uint64, t realtime.Transport, start time.Time, done chan<- error) {
	ctx := context.Background()
	norm := &realtime.Normalizer{}
	first := true

	for f := range t.Frames() {
		if !m.current(gen) {
			signalDone(done, context.Canceled)
			return
		}
		if first {
			first = false
			m.metrics.RecordConnectAttempt(ctx, "ok")
			m.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
			m.retry.Reset()
			m.transition(gen, realtime.StatusConnected)
			signalDone(done, nil)
		}
		for _, ev := range norm.Normalize(f) {
			m.dispatch(gen, ev)
		}
	}

	// Transport ended. A locally initiated close bumped the generation first,
	// so reaching here with a current generation means the connection dropped.
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		signalDone(done, context.Canceled)
		return
	}
	err := t.Err()
	if err == nil {
		err = errors.New("voice: connection closed by server")
	}
	m.lastErr = err
	m.transport = nil
	m.proxy = nil
	notify := m.scheduleRetryLocked()
	m.mu.Unlock()

	signalDone(done, err)
	m.sink.Drain()
	m.tracker.Reset()
	notify()
	m.notifyError(err)
}

// scheduleRetryLocked consults the retry policy and moves to reconnecting or
// error. Must be called with m.mu held; returns the deferred status
// notification.
func (m *Manager) scheduleRetryLocked() func() {
	delay, ok := m.retry.Next()
	if !ok {
		slog.Error("reconnection attempts exhausted", "attempts", m.retry.Attempts())
		return m.setStatusLocked(realtime.StatusError)
	}

	m.metrics.Reconnects.Add(context.Background(), 1)
	slog.Info("scheduling reconnect", "delay", delay, "attempt", m.retry.Attempts())

	gen := m.generation
	m.timer = time.AfterFunc(delay, func() { m.reconnect(gen) })
	return m.setStatusLocked(realtime.StatusReconnecting)
}

// reconnect fires from the retry timer and launches a fresh attempt unless a
// user action superseded it in the meantime.
func (m *Manager) reconnect(expected uint64) {
	m.mu.Lock()
	if m.closed || expected != m.generation || m.status != realtime.StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	go m.establish(context.Background(), gen, nil)
}

// ── Event dispatch ─────────────────────────────────────────────────────────────

// dispatch routes one normalized event to the turn tracker, the audio sink,
// and the callbacks.
func (m *Manager) dispatch(gen uint64, ev realtime.Event) {
	switch ev.Kind {
	case realtime.KindSpeechStarted, realtime.KindSpeechStopped,
		realtime.KindAudioStart, realtime.KindAudioStopped, realtime.KindAudioInterrupted:
		if state, changed := m.tracker.Apply(ev); changed {
			m.notifyAudioState(state)
		}
		if ev.Kind == realtime.KindAudioInterrupted {
			m.sink.Drain()
		}

	case realtime.KindAssistantAudio:
		m.sink.Write(ev.Audio)
		if m.cb.OnAudio != nil {
			m.cb.OnAudio(ev.Audio)
		}

	case realtime.KindVolume:
		if m.cb.OnVolume != nil {
			m.cb.OnVolume(ev.Level)
		}

	case realtime.KindAssistantText:
		m.emitMessage(realtime.RoleAssistant, ev.Text, ev.Final)

	case realtime.KindUserText:
		m.emitMessage(realtime.RoleUser, ev.Text, ev.Final)

	case realtime.KindToolCall:
		go m.handleToolCall(gen, ev)

	case realtime.KindToolApproval:
		go m.approveTool(gen, ev)

	case realtime.KindError:
		m.mu.Lock()
		if gen == m.generation {
			m.lastErr = ev.Err
		}
		m.mu.Unlock()
		m.metrics.SessionErrors.Add(context.Background(), 1)
		m.notifyError(ev.Err)
	}
}

// emitMessage converts a transcript event into a conversation message.
func (m *Manager) emitMessage(role realtime.Role, text string, final bool) {
	if final {
		m.metrics.RecordTranscript(context.Background(), string(role))
	}
	if m.cb.OnMessage == nil {
		return
	}
	m.cb.OnMessage(realtime.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   text,
		Timestamp: time.Now(),
		Partial:   !final,
	})
}

// handleToolCall executes one model-initiated tool call through the proxy
// and feeds the result back as a function call output plus a response
// request. Stale results from a superseded session are discarded.
func (m *Manager) handleToolCall(gen uint64, ev realtime.Event) {
	m.mu.Lock()
	proxy, t := m.proxy, m.transport
	m.mu.Unlock()
	if proxy == nil || t == nil {
		return
	}

	output := proxy.Invoke(context.Background(), ev.Name, ev.Arguments)

	if !m.current(gen) {
		return
	}
	if err := t.Send(realtime.Frame{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": ev.CallID,
			"output":  output,
		},
	}); err != nil {
		slog.Warn("tool output delivery failed", "tool", ev.Name, "err", err)
		return
	}
	if err := t.Send(realtime.Frame{"type": "response.create"}); err != nil {
		slog.Warn("response request after tool output failed", "tool", ev.Name, "err", err)
	}
}

// approveTool answers a tool approval request. Approval is unconditional:
// the backend proxy is the real authorization boundary.
func (m *Manager) approveTool(gen uint64, ev realtime.Event) {
	if !m.current(gen) {
		return
	}
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.Send(realtime.Frame{
		"type":                "tool_approval_response",
		"approval_request_id": ev.ApprovalID,
		"approve":             true,
	}); err != nil {
		slog.Warn("tool approval failed", "tool", ev.Name, "err", err)
	}
}

// ── Internal helpers ───────────────────────────────────────────────────────────

// current reports whether gen is still the live generation.
func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation
}

// connectedTransport returns the live transport or ErrNotConnected.
func (m *Manager) connectedTransport() (realtime.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != realtime.StatusConnected || m.transport == nil {
		return nil, realtime.ErrNotConnected
	}
	return m.transport, nil
}

// setStatusLocked updates the status and returns the deferred callback
// invocation, so callers notify outside the lock. Must be called with m.mu
// held. The active sessions gauge tracks entry to and exit from connected.
func (m *Manager) setStatusLocked(status realtime.ConnectionStatus) func() {
	old := m.status
	if old == status {
		return func() {}
	}
	m.status = status

	return func() {
		ctx := context.Background()
		if status == realtime.StatusConnected {
			m.metrics.ActiveSessions.Add(ctx, 1)
		} else if old == realtime.StatusConnected {
			m.metrics.ActiveSessions.Add(ctx, -1)
		}
		slog.Info("connection status changed", "from", old, "to", status)
		if m.cb.OnStatus != nil {
			m.cb.OnStatus(status)
		}
	}
}

// transition is the gen-checked variant of setStatusLocked for asynchronous
// callers.
func (m *Manager) transition(gen uint64, status realtime.ConnectionStatus) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	notify := m.setStatusLocked(status)
	m.mu.Unlock()
	notify()
}

// stopTimerLocked cancels any pending reconnect timer. Must be called with
// m.mu held.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) notifyAudioState(state realtime.AudioState) {
	if m.cb.OnAudioState != nil {
		m.cb.OnAudioState(state)
	}
}

func (m *Manager) notifyError(err error) {
	if m.cb.OnError != nil && err != nil {
		m.cb.OnError(err)
	}
}
