package config

import (
	"reflect"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; backend and
// server address changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true when any session default (model, voice,
	// persona, sampling, features) changed. The new defaults apply to the
	// next connection, never to a live one.
	SessionChanged bool

	// ReconnectChanged is true when the reconnection policy changed.
	ReconnectChanged bool
	NewDelay         time.Duration
	NewMaxAttempts   int
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.Session, new.Session) {
		d.SessionChanged = true
	}

	if old.Reconnect != new.Reconnect {
		d.ReconnectChanged = true
		d.NewDelay = new.Reconnect.Delay
		d.NewMaxAttempts = new.Reconnect.MaxAttempts
	}

	return d
}

// HasChanges reports whether the diff contains any reloadable change.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.SessionChanged || d.ReconnectChanged
}
