package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nmellis/casavox/internal/config"
)

const watcherBaseYAML = `
server:
  log_level: info
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
`

const watcherEditedYAML = `
server:
  log_level: debug
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
  voice: coral
`

const watcherBrokenYAML = `
server:
  log_level: bananas
`

// reloadEvent captures one onChange invocation.
type reloadEvent struct {
	old, new *config.Config
}

// startWatcher writes the initial YAML to a temp file and starts a
// fast-polling watcher over it. Reload events arrive on the returned channel.
func startWatcher(t *testing.T, initial string) (*config.Watcher, string, <-chan reloadEvent) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, initial)

	events := make(chan reloadEvent, 8)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		events <- reloadEvent{old: old, new: new}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path, events
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, _, _ := startWatcher(t, watcherBaseYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q; want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_ReloadsOnEdit(t *testing.T) {
	t.Parallel()

	w, path, events := startWatcher(t, watcherBaseYAML)

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, watcherEditedYAML)

	var ev reloadEvent
	select {
	case ev = <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload callback")
	}

	if ev.old == nil || ev.new == nil {
		t.Fatal("callback received nil configs")
	}
	if ev.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q; want info", ev.old.Server.LogLevel)
	}
	if ev.new.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q; want debug", ev.new.Server.LogLevel)
	}
	if got := w.Current().Session.Voice; got != "coral" {
		t.Errorf("Current voice = %q; want coral", got)
	}
}

func TestWatcher_BrokenEditKeepsPreviousConfig(t *testing.T) {
	t.Parallel()

	w, path, events := startWatcher(t, watcherBaseYAML)

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, watcherBrokenYAML)
	time.Sleep(300 * time.Millisecond)

	select {
	case ev := <-events:
		t.Fatalf("callback fired for invalid config: %+v", ev)
	default:
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current log_level = %q; want the pre-edit value", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("NewWatcher on a missing file should fail")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w, _, _ := startWatcher(t, watcherBaseYAML)
	for i := 0; i < 3; i++ {
		w.Stop()
	}
}

func TestWatcher_TouchWithoutEditDoesNotFire(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, watcherBaseYAML)

	var calls atomic.Int32
	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		calls.Add(1)
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Bump the mtime only; the content digest is unchanged.
	time.Sleep(100 * time.Millisecond)
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback fired %d times for a touch-only change", got)
	}
}
