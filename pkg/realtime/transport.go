package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

const (
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// frameChannelBuffer is the depth of the inbound frame channel. The
	// consumer (the session manager's dispatch loop) is expected to keep up;
	// the buffer only absorbs short bursts.
	frameChannelBuffer = 64
)

// Transport is a live bidirectional frame stream to the remote realtime
// endpoint. Outbound frames pass through the [ProtocolAdapter] before
// hitting the socket; inbound frames arrive raw on Frames.
//
// The Frames channel is closed when the transport ends. After it closes,
// Err reports whether the transport ended cleanly (nil) or dropped.
//
// All methods are safe for concurrent use.
type Transport interface {
	// Send translates and writes one frame. Frames the adapter suppresses
	// are silently not sent.
	Send(f Frame) error

	// SendAudio writes one raw PCM16 chunk as an input audio append frame.
	SendAudio(pcm []byte) error

	// Frames returns the inbound raw frame channel.
	Frames() <-chan Frame

	// Err returns the error that terminated the transport, or nil.
	Err() error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer establishes a Transport for one connection attempt. The session
// manager depends on this signature so tests can substitute an in-memory
// transport.
type Dialer func(ctx context.Context, cfg SessionConfig, grant TokenGrant) (Transport, error)

// Compile-time assertion that the WebSocket transport satisfies Transport.
var _ Transport = (*wsTransport)(nil)

// WSDialerOption is a functional option for configuring a [WSDialer].
type WSDialerOption func(*WSDialer)

// WithBaseURL overrides the realtime endpoint URL. Primarily used in tests
// to point at a local mock server.
func WithBaseURL(url string) WSDialerOption {
	return func(d *WSDialer) { d.baseURL = url }
}

// WithAdapter swaps the protocol adapter version.
func WithAdapter(a ProtocolAdapter) WSDialerOption {
	return func(d *WSDialer) { d.adapter = a }
}

// WSDialer dials WebSocket transports against the hosted realtime endpoint,
// authenticating with the per-session ephemeral token.
type WSDialer struct {
	baseURL string
	adapter ProtocolAdapter
}

// NewWSDialer creates a dialer with the given options applied in order.
func NewWSDialer(opts ...WSDialerOption) *WSDialer {
	d := &WSDialer{
		baseURL: defaultBaseURL,
		adapter: WireAdapterV1{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial opens the WebSocket connection, sends the initial session.update
// frame (through the adapter), and starts the receive loop. The caller owns
// the returned Transport and must Close it.
func (d *WSDialer) Dial(ctx context.Context, cfg SessionConfig, grant TokenGrant) (Transport, error) {
	wsURL := fmt.Sprintf("%s?model=%s", d.baseURL, cfg.Model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + grant.Token},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	tctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		conn:    conn,
		adapter: d.adapter,
		frames:  make(chan Frame, frameChannelBuffer),
		ctx:     tctx,
		cancel:  cancel,
	}

	if err := t.Send(SessionUpdateFrame(cfg)); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("realtime: session update: %w", err)
	}

	go t.receiveLoop()

	return t, nil
}

// wsTransport is the production [Transport] over coder/websocket.
type wsTransport struct {
	conn    *websocket.Conn
	adapter ProtocolAdapter
	frames  chan Frame

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Send implements [Transport].
func (t *wsTransport) Send(f Frame) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("realtime: transport closed")
	}
	t.mu.Unlock()

	out, ok := t.adapter.Translate(f)
	if !ok {
		return nil
	}
	return t.writeJSON(out)
}

// SendAudio implements [Transport].
func (t *wsTransport) SendAudio(pcm []byte) error {
	return t.Send(Frame{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (t *wsTransport) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return t.conn.Write(t.ctx, websocket.MessageText, data)
}

// receiveLoop reads frames from the socket until it closes. It owns the
// frames channel and closes it on exit.
func (t *wsTransport) receiveLoop() {
	defer t.closeFrames()

	for {
		_, data, err := t.conn.Read(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				// Local close; not a transport failure.
				return
			}
			t.setErr(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		select {
		case t.frames <- f:
		case <-t.ctx.Done():
			return
		}
	}
}

// Frames implements [Transport].
func (t *wsTransport) Frames() <-chan Frame { return t.frames }

// Err implements [Transport].
func (t *wsTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errVal
}

// Close implements [Transport].
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (t *wsTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errVal == nil {
		t.errVal = err
	}
}

func (t *wsTransport) closeFrames() {
	t.closeOnce.Do(func() { close(t.frames) })
}
