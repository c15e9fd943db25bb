// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader resolves the effective configuration with the precedence
// ENV > file > defaults.
type Loader struct {
	path string
}

// NewLoader creates a loader for the optional YAML file at path.
// An empty path skips the file layer entirely.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load produces a validated Config.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.path != "" {
		data, err := os.ReadFile(l.path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		// Strict decoding so typos in keys fail loudly at startup.
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", l.path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = ParseString("CLIPD_LISTEN", cfg.ListenAddr)
	cfg.DataDir = ParseString("CLIPD_DATA", cfg.DataDir)
	cfg.CaptureBin = ParseString("CLIPD_CAPTURE_BIN", cfg.CaptureBin)
	cfg.FFmpegBin = ParseString("CLIPD_FFMPEG_BIN", cfg.FFmpegBin)
	cfg.MaxClipSeconds = ParseInt("CLIPD_MAX_CLIP_SECONDS", cfg.MaxClipSeconds)
	cfg.DefaultClipSeconds = ParseInt("CLIPD_DEFAULT_CLIP_SECONDS", cfg.DefaultClipSeconds)
	cfg.CaptureTimeout = ParseDuration("CLIPD_CAPTURE_TIMEOUT", cfg.CaptureTimeout)
	cfg.TranscodeTimeout = ParseDuration("CLIPD_TRANSCODE_TIMEOUT", cfg.TranscodeTimeout)
	cfg.KillGrace = ParseDuration("CLIPD_KILL_GRACE", cfg.KillGrace)
	cfg.PreviewMaxWidth = ParseInt("CLIPD_PREVIEW_MAX_WIDTH", cfg.PreviewMaxWidth)
	cfg.RateLimitPerMinute = ParseInt("CLIPD_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.LogLevel = ParseString("CLIPD_LOG_LEVEL", cfg.LogLevel)
}
