package realtime

import "sync"

// sinkChannelBuffer is the depth of the sink's PCM output channel. Deep
// enough to absorb network jitter without stalling the receive loop.
const sinkChannelBuffer = 64

// AudioSink is the output audio resource for one connection attempt. It is
// created on connect and exclusively owned and destroyed by the connection
// lifecycle — no other component may reference it after teardown.
//
// Writes after Close are dropped safely, so late frames from a superseded
// session cannot panic on a closed channel.
type AudioSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewAudioSink creates a sink with a buffered PCM output channel.
func NewAudioSink() *AudioSink {
	return &AudioSink{ch: make(chan []byte, sinkChannelBuffer)}
}

// Write delivers one PCM16 chunk to the sink. Returns false if the sink is
// closed or the consumer is too far behind (the chunk was dropped). Audio is
// a real-time stream: dropping beats blocking the receive loop.
func (s *AudioSink) Write(pcm []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- pcm:
		return true
	default:
		return false
	}
}

// Output returns the read-only channel playback consumers drain. The channel
// is closed when the sink is closed.
func (s *AudioSink) Output() <-chan []byte {
	return s.ch
}

// Drain discards any buffered chunks without closing the sink. Used on
// interrupt so stale model audio does not play after barge-in.
func (s *AudioSink) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}

// Close marks the sink closed and closes the output channel. Idempotent.
func (s *AudioSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
