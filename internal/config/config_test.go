package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/nmellis/casavox/internal/config"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

backend:
  base_url: "https://api.example.com"
  api_key: "test-key"
  timeout: 10s

realtime:
  base_url: "wss://realtime.example.com/v1/realtime"

session:
  model: gpt-4o-realtime-preview
  voice: sage
  persona: "You are Ava, a helpful investment assistant."
  sampling:
    temperature: 0.8
  features:
    vad_threshold: 0.5
    silence_duration_ms: 500
    barge_in_enabled: true
    input_transcription: true
    supported_locales: [en-US, es-ES]

identity:
  user_id: u-1
  tenant_id: t-1

reconnect:
  delay: 2s
  max_attempts: 5
`

func loadSample(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return cfg
}

// ── parsing ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_ParsesAllSections(t *testing.T) {
	t.Parallel()
	cfg := loadSample(t)

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" || cfg.Backend.APIKey != "test-key" {
		t.Errorf("backend: got %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("backend.timeout: got %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Realtime.BaseURL != "wss://realtime.example.com/v1/realtime" {
		t.Errorf("realtime.base_url: got %q", cfg.Realtime.BaseURL)
	}
	if cfg.Session.Model != "gpt-4o-realtime-preview" || cfg.Session.Voice != "sage" {
		t.Errorf("session: got %+v", cfg.Session)
	}
	if cfg.Session.Sampling.Temperature != 0.8 {
		t.Errorf("temperature: got %v", cfg.Session.Sampling.Temperature)
	}
	if cfg.Session.Features.VADThreshold != 0.5 || cfg.Session.Features.SilenceDurationMs != 500 {
		t.Errorf("features: got %+v", cfg.Session.Features)
	}
	if !cfg.Session.Features.BargeInEnabled || !cfg.Session.Features.InputTranscription {
		t.Errorf("feature switches: got %+v", cfg.Session.Features)
	}
	if len(cfg.Session.Features.SupportedLocales) != 2 {
		t.Errorf("supported_locales: got %v", cfg.Session.Features.SupportedLocales)
	}
	if cfg.Identity.UserID != "u-1" || cfg.Identity.TenantID != "t-1" {
		t.Errorf("identity: got %+v", cfg.Identity)
	}
	if cfg.Reconnect.Delay != 2*time.Second || cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("reconnect: got %+v", cfg.Reconnect)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
  vocie: sage
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "vocie") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server: [unclosed"))
	if err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
}

// ── session defaults ─────────────────────────────────────────────────────────

func TestSessionDefaults(t *testing.T) {
	t.Parallel()
	cfg := loadSample(t)

	got := cfg.SessionDefaults()
	if got.Model != "gpt-4o-realtime-preview" || got.Voice != "sage" {
		t.Errorf("defaults: got %+v", got)
	}
	if !strings.HasPrefix(got.Instructions, "You are Ava") {
		t.Errorf("instructions should start with the persona: %q", got.Instructions)
	}
	if !strings.Contains(got.Instructions, "en-US, es-ES") {
		t.Errorf("instructions should list the supported locales: %q", got.Instructions)
	}
	if got.Sampling.Temperature != 0.8 {
		t.Errorf("sampling not carried over: %+v", got.Sampling)
	}
	if got.Features.VADThreshold != 0.5 {
		t.Errorf("features not carried over: %+v", got.Features)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("bananas").IsValid() {
		t.Error("bananas should not be a valid log level")
	}
}
