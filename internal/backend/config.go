package backend

import (
	"context"
	"log/slog"

	"github.com/nmellis/casavox/pkg/realtime"
)

// remoteConfig mirrors GET /realtime/config. Every field is optional on the
// wire; pointers distinguish "absent" from an explicit zero so the merge can
// work key by key.
type remoteConfig struct {
	Model              string                    `json:"model"`
	Voice              string                    `json:"voice"`
	SystemInstructions string                    `json:"systemInstructions"`
	Sampling           *remoteSampling           `json:"sampling"`
	Features           *remoteFeatures           `json:"features"`
	Tools              []realtime.ToolDefinition `json:"tools"`
}

type remoteSampling struct {
	Temperature      *float64 `json:"temperature"`
	FrequencyPenalty *float64 `json:"frequencyPenalty"`
	PresencePenalty  *float64 `json:"presencePenalty"`
}

type remoteFeatures struct {
	VADThreshold       *float64 `json:"vadThreshold"`
	SilenceDurationMs  *int     `json:"silenceDurationMs"`
	BargeInEnabled     *bool    `json:"bargeInEnabled"`
	InputTranscription *bool    `json:"inputTranscription"`
	SupportedLocales   []string `json:"supportedLocales"`
}

// ResolveConfig fetches remote session parameters and merges them over the
// fully-specified local defaults. Config acquisition is best-effort: on any
// failure the defaults are returned unchanged and the failure is logged,
// never surfaced — a missing config endpoint must not block a connection.
func (c *Client) ResolveConfig(ctx context.Context, defaults realtime.SessionConfig) realtime.SessionConfig {
	var remote remoteConfig
	if err := c.doJSON(ctx, "GET", "/realtime/config", nil, &remote); err != nil {
		slog.Warn("remote session config unavailable, using defaults", "err", err)
		return defaults
	}
	return mergeConfig(defaults, remote)
}

// mergeConfig overlays remote values onto defaults key by key. Nested
// sections merge field-wise — a remote features block carrying only one flag
// must not wipe the default values of its siblings.
func mergeConfig(defaults realtime.SessionConfig, remote remoteConfig) realtime.SessionConfig {
	out := defaults

	if remote.Model != "" {
		out.Model = remote.Model
	}
	if remote.Voice != "" {
		out.Voice = remote.Voice
	}
	if remote.SystemInstructions != "" {
		out.Instructions = remote.SystemInstructions
	}

	if s := remote.Sampling; s != nil {
		if s.Temperature != nil {
			out.Sampling.Temperature = *s.Temperature
		}
		if s.FrequencyPenalty != nil {
			out.Sampling.FrequencyPenalty = s.FrequencyPenalty
		}
		if s.PresencePenalty != nil {
			out.Sampling.PresencePenalty = s.PresencePenalty
		}
	}

	if f := remote.Features; f != nil {
		if f.VADThreshold != nil {
			out.Features.VADThreshold = *f.VADThreshold
		}
		if f.SilenceDurationMs != nil {
			out.Features.SilenceDurationMs = *f.SilenceDurationMs
		}
		if f.BargeInEnabled != nil {
			out.Features.BargeInEnabled = *f.BargeInEnabled
		}
		if f.InputTranscription != nil {
			out.Features.InputTranscription = *f.InputTranscription
		}
		if len(f.SupportedLocales) > 0 {
			out.Features.SupportedLocales = f.SupportedLocales
		}
	}

	if len(remote.Tools) > 0 {
		out.Tools = remote.Tools
	}

	return out
}
