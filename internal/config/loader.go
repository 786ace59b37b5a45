package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/nmellis/casavox/pkg/realtime"
)

// KnownVoices lists the voice identifiers the hosted speech endpoint accepts.
// Used by [Validate] to warn about likely typos.
var KnownVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Backend
	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s must not be negative", cfg.Backend.Timeout))
	}

	// Session
	if cfg.Session.Model == "" {
		errs = append(errs, errors.New("session.model is required"))
	}
	if cfg.Session.Voice != "" && !slices.Contains(KnownVoices, cfg.Session.Voice) {
		slog.Warn("unknown voice — may be a typo or a newly added voice",
			"voice", cfg.Session.Voice,
			"known", KnownVoices,
		)
	}
	if t := cfg.Session.Sampling.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("session.sampling.temperature %.2f is out of range [0, 2]", t))
	}
	if v := cfg.Session.Features.VADThreshold; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("session.features.vad_threshold %.2f is out of range [0, 1]", v))
	}
	if s := cfg.Session.Features.SilenceDurationMs; s < 0 {
		errs = append(errs, fmt.Errorf("session.features.silence_duration_ms %d must not be negative", s))
	}

	// Reconnect
	if cfg.Reconnect.Delay < 0 {
		errs = append(errs, fmt.Errorf("reconnect.delay %s must not be negative", cfg.Reconnect.Delay))
	}
	if cfg.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts %d must not be negative", cfg.Reconnect.MaxAttempts))
	}

	return errors.Join(errs...)
}

// SessionDefaults converts the session block into the realtime configuration
// handed to the session manager. System instructions are composed from the
// persona and feature flags; a remote config with explicit instructions
// overrides them during the merge.
func (c *Config) SessionDefaults() realtime.SessionConfig {
	return realtime.SessionConfig{
		Model: c.Session.Model,
		Voice: c.Session.Voice,
		Instructions: realtime.BuildInstructions(realtime.InstructionInput{
			Persona: c.Session.Persona,
			Locales: c.Session.Features.SupportedLocales,
			BargeIn: c.Session.Features.BargeInEnabled,
		}),
		Sampling: c.Session.Sampling,
		Features: c.Session.Features,
	}
}
