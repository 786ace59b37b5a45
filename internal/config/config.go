// Package config provides the configuration schema, loader, and file watcher
// for the casavox voice session service.
package config

import (
	"time"

	"github.com/nmellis/casavox/pkg/realtime"
)

// LogLevel controls log verbosity for the casavox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for casavox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Session   SessionConfig   `yaml:"session"`
	Identity  IdentityConfig  `yaml:"identity"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ServerConfig holds network and logging settings for the local metrics and
// health endpoints.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// BackendConfig describes the application backend that mints session tokens,
// serves session configuration, and executes proxied tools.
type BackendConfig struct {
	// BaseURL is the backend REST API root (e.g., "https://api.example.com").
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates this client to the backend. May be empty.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-request timeout. Zero uses the client default.
	Timeout time.Duration `yaml:"timeout"`
}

// RealtimeConfig holds settings for the hosted speech endpoint.
type RealtimeConfig struct {
	// BaseURL overrides the realtime WebSocket endpoint. Leave empty to use
	// the built-in default.
	BaseURL string `yaml:"base_url"`
}

// SessionConfig holds the local default session parameters. Remote
// configuration from the backend is merged over these per connection.
type SessionConfig struct {
	// Model is the hosted speech model identifier.
	Model string `yaml:"model"`

	// Voice selects the model's output voice.
	Voice string `yaml:"voice"`

	// Persona is a free-text persona description injected into the system
	// instructions. Leave empty to use the built-in default.
	Persona string `yaml:"persona"`

	// Sampling holds model sampling knobs.
	Sampling realtime.SamplingParams `yaml:"sampling"`

	// Features holds behavioural switches.
	Features realtime.FeatureFlags `yaml:"features"`
}

// IdentityConfig holds the caller identifiers forwarded to the backend.
type IdentityConfig struct {
	UserID   string `yaml:"user_id"`
	TenantID string `yaml:"tenant_id"`
}

// ReconnectConfig tunes the automatic reconnection policy.
type ReconnectConfig struct {
	// Delay is the fixed wait between reconnection attempts.
	Delay time.Duration `yaml:"delay"`

	// MaxAttempts caps consecutive reconnection attempts before the session
	// parks in the error state.
	MaxAttempts int `yaml:"max_attempts"`
}
