// SPDX-License-Identifier: MIT

// Package config loads and validates clipd configuration with the
// precedence ENV > file > defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config is the effective runtime configuration of the daemon.
type Config struct {
	// ListenAddr is the HTTP bind address, e.g. ":8080".
	ListenAddr string `yaml:"listen"`

	// DataDir is the root for captures and finished previews.
	DataDir string `yaml:"dataDir"`

	// CaptureBin is the stream capture engine binary (yt-dlp compatible).
	CaptureBin string `yaml:"captureBin"`
	// FFmpegBin is the transcode engine binary.
	FFmpegBin string `yaml:"ffmpegBin"`

	// MaxClipSeconds caps the requested capture duration.
	MaxClipSeconds int `yaml:"maxClipSeconds"`
	// DefaultClipSeconds is used when a request omits the duration.
	DefaultClipSeconds int `yaml:"defaultClipSeconds"`

	// CaptureTimeout bounds the wall-clock runtime of one capture process.
	CaptureTimeout time.Duration `yaml:"captureTimeout"`
	// TranscodeTimeout bounds the wall-clock runtime of one transcode process.
	TranscodeTimeout time.Duration `yaml:"transcodeTimeout"`
	// KillGrace is the SIGTERM-to-SIGKILL grace period for stage processes.
	KillGrace time.Duration `yaml:"killGrace"`

	// PreviewMaxWidth caps the preview width in pixels.
	PreviewMaxWidth int `yaml:"previewMaxWidth"`

	// RateLimitPerMinute limits capture requests per client IP. 0 disables.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`

	// LogLevel is the zerolog level name.
	LogLevel string `yaml:"logLevel"`
}

// CapturesDir returns the directory for raw capture files.
func (c Config) CapturesDir() string {
	return filepath.Join(c.DataDir, "captures")
}

// PreviewsDir returns the directory for finished preview clips.
func (c Config) PreviewsDir() string {
	return filepath.Join(c.DataDir, "previews")
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		ListenAddr:         ":8080",
		DataDir:            "/var/lib/clipd",
		CaptureBin:         "yt-dlp",
		FFmpegBin:          "ffmpeg",
		MaxClipSeconds:     120,
		DefaultClipSeconds: 30,
		CaptureTimeout:     10 * time.Minute,
		TranscodeTimeout:   5 * time.Minute,
		KillGrace:          5 * time.Second,
		PreviewMaxWidth:    640,
		RateLimitPerMinute: 30,
		LogLevel:           "info",
	}
}

var errInvalidConfig = errors.New("invalid configuration")

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address must not be empty", errInvalidConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory must not be empty", errInvalidConfig)
	}
	if c.CaptureBin == "" || c.FFmpegBin == "" {
		return fmt.Errorf("%w: engine binaries must not be empty", errInvalidConfig)
	}
	if c.MaxClipSeconds <= 0 {
		return fmt.Errorf("%w: maxClipSeconds must be positive", errInvalidConfig)
	}
	if c.DefaultClipSeconds <= 0 || c.DefaultClipSeconds > c.MaxClipSeconds {
		return fmt.Errorf("%w: defaultClipSeconds must be in (0, maxClipSeconds]", errInvalidConfig)
	}
	if c.CaptureTimeout <= 0 || c.TranscodeTimeout <= 0 {
		return fmt.Errorf("%w: stage timeouts must be positive", errInvalidConfig)
	}
	if c.PreviewMaxWidth < 16 {
		return fmt.Errorf("%w: previewMaxWidth too small", errInvalidConfig)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("%w: rateLimitPerMinute must not be negative", errInvalidConfig)
	}
	return nil
}
