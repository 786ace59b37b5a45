package config_test

import (
	"strings"
	"testing"

	"github.com/nmellis/casavox/internal/config"
)

func TestValidate_MissingBackendBaseURL(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  model: gpt-4o-realtime-preview
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing backend.base_url, got nil")
	}
	if !strings.Contains(err.Error(), "backend.base_url") {
		t.Errorf("error should mention backend.base_url, got: %v", err)
	}
}

func TestValidate_MissingModel(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "https://api.example.com"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing session.model, got nil")
	}
	if !strings.Contains(err.Error(), "session.model") {
		t.Errorf("error should mention session.model, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/casavox/tls.crt
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS with only cert_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_TemperatureOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
  sampling:
    temperature: 3.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range temperature, got nil")
	}
	if !strings.Contains(err.Error(), "temperature") {
		t.Errorf("error should mention temperature, got: %v", err)
	}
}

func TestValidate_VADThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
  features:
    vad_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range vad_threshold, got nil")
	}
	if !strings.Contains(err.Error(), "vad_threshold") {
		t.Errorf("error should mention vad_threshold, got: %v", err)
	}
}

func TestValidate_NegativeReconnect(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
reconnect:
  delay: -1s
  max_attempts: -3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative reconnect settings, got nil")
	}
	if !strings.Contains(err.Error(), "reconnect.delay") {
		t.Errorf("error should mention reconnect.delay, got: %v", err)
	}
	if !strings.Contains(err.Error(), "reconnect.max_attempts") {
		t.Errorf("error should mention reconnect.max_attempts, got: %v", err)
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: shouty
session:
  sampling:
    temperature: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"log_level", "backend.base_url", "session.model", "temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownVoiceIsNotAnError(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "https://api.example.com"
session:
  model: gpt-4o-realtime-preview
  voice: brand-new-voice
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown voice should only warn, got error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
