package realtime_test

import (
	"sync"
	"testing"

	"github.com/nmellis/casavox/pkg/realtime"
)

func TestAudioSink_WriteAndRead(t *testing.T) {
	t.Parallel()

	s := realtime.NewAudioSink()
	defer s.Close()

	if !s.Write([]byte{1, 2}) {
		t.Fatal("Write returned false on an open sink")
	}
	got := <-s.Output()
	if string(got) != string([]byte{1, 2}) {
		t.Errorf("read %v; want [1 2]", got)
	}
}

func TestAudioSink_DropsWhenFull(t *testing.T) {
	t.Parallel()

	s := realtime.NewAudioSink()
	defer s.Close()

	// Fill the buffer without a consumer.
	for s.Write([]byte{0}) {
	}
	if s.Write([]byte{0}) {
		t.Error("Write on a full sink should drop and return false")
	}
}

func TestAudioSink_DrainDiscardsBuffered(t *testing.T) {
	t.Parallel()

	s := realtime.NewAudioSink()
	defer s.Close()

	s.Write([]byte{1})
	s.Write([]byte{2})
	s.Drain()

	select {
	case chunk := <-s.Output():
		t.Errorf("read %v after Drain; want nothing", chunk)
	default:
	}

	// The sink stays usable after Drain.
	if !s.Write([]byte{3}) {
		t.Error("Write after Drain returned false")
	}
}

func TestAudioSink_CloseIdempotentAndSafe(t *testing.T) {
	t.Parallel()

	s := realtime.NewAudioSink()
	s.Close()
	s.Close()

	if s.Write([]byte{1}) {
		t.Error("Write after Close should return false")
	}
	s.Drain() // must not spin or panic on a closed sink

	if _, open := <-s.Output(); open {
		t.Error("Output channel should be closed")
	}
}

func TestAudioSink_ConcurrentWriteAndClose(t *testing.T) {
	t.Parallel()

	s := realtime.NewAudioSink()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				s.Write([]byte{0xAB})
			}
		}()
	}
	s.Close()
	wg.Wait()
}
