// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamclip/clipd/internal/clip"
	"github.com/streamclip/clipd/internal/stage"
)

// writeFakeEngine installs a shell stand-in for yt-dlp. It scans its
// arguments for the -o output path, mirrors the provided body, and exits.
func writeFakeEngine(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-capture")
	content := "#!/bin/sh\nout=\"\"\nprev=\"\"\nfor a in \"$@\"; do\n  if [ \"$prev\" = \"-o\" ]; then out=\"$a\"; fi\n  prev=\"$a\"\ndone\n" + body
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755)) // #nosec G306
	return script
}

func collect(t *testing.T, events <-chan stage.Event) (progress []float64, terminal stage.Event) {
	t.Helper()
	sawTerminal := false
	for ev := range events {
		if ev.Terminal {
			require.False(t, sawTerminal, "more than one terminal event")
			sawTerminal = true
			terminal = ev
			continue
		}
		progress = append(progress, ev.Progress)
	}
	require.True(t, sawTerminal, "no terminal event")
	return progress, terminal
}

func TestRunnerSuccessWithProgress(t *testing.T) {
	bin := writeFakeEngine(t, "echo '[download]  45.0% of ~10MiB'\necho 'no percent here'\necho '[download]  99.1% of ~10MiB'\necho data > \"$out\"\nexit 0\n")
	out := filepath.Join(t.TempDir(), "raw.mp4")

	r := NewRunner(bin, time.Second)
	events := r.Start(context.Background(), Request{
		URL:             "https://example/stream",
		Quality:         clip.QualityMedium,
		DurationSeconds: 10,
		OutputPath:      out,
	})

	progress, terminal := collect(t, events)
	require.NoError(t, terminal.Err)
	assert.Equal(t, out, terminal.Output)
	assert.Contains(t, progress, 45.0)
	assert.Contains(t, progress, 99.1)
}

func TestRunnerNonZeroExit(t *testing.T) {
	bin := writeFakeEngine(t, "echo 'ERROR: unable to download' >&2\nexit 1\n")
	out := filepath.Join(t.TempDir(), "raw.mp4")

	r := NewRunner(bin, time.Second)
	events := r.Start(context.Background(), Request{URL: "https://example/stream", OutputPath: out})

	_, terminal := collect(t, events)
	var exitErr *ExitError
	require.ErrorAs(t, terminal.Err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.NotEmpty(t, exitErr.Stderr)
}

func TestRunnerEmptyOutputIsFailure(t *testing.T) {
	bin := writeFakeEngine(t, ": > \"$out\"\nexit 0\n")
	out := filepath.Join(t.TempDir(), "raw.mp4")

	r := NewRunner(bin, time.Second)
	events := r.Start(context.Background(), Request{URL: "https://example/stream", OutputPath: out})

	_, terminal := collect(t, events)
	var exitErr *ExitError
	require.ErrorAs(t, terminal.Err, &exitErr)
	assert.Equal(t, 0, exitErr.Code)
}

func TestRunnerSpawnFailure(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "does-not-exist"), time.Second)
	events := r.Start(context.Background(), Request{URL: "https://example/stream", OutputPath: "/tmp/x"})

	_, terminal := collect(t, events)
	assert.ErrorIs(t, terminal.Err, ErrLaunch)
}

func TestRunnerTimeoutKillsProcess(t *testing.T) {
	bin := writeFakeEngine(t, "sleep 30\n")
	out := filepath.Join(t.TempDir(), "raw.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	r := NewRunner(bin, 500*time.Millisecond)
	start := time.Now()
	events := r.Start(ctx, Request{URL: "https://example/stream", OutputPath: out})

	_, terminal := collect(t, events)
	assert.ErrorIs(t, terminal.Err, stage.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunnerCancelled(t *testing.T) {
	bin := writeFakeEngine(t, "sleep 30\n")
	out := filepath.Join(t.TempDir(), "raw.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(bin, 500*time.Millisecond)
	events := r.Start(ctx, Request{URL: "https://example/stream", OutputPath: out})

	time.Sleep(100 * time.Millisecond)
	cancel()

	_, terminal := collect(t, events)
	assert.ErrorIs(t, terminal.Err, stage.ErrCancelled)
	assert.False(t, errors.Is(terminal.Err, stage.ErrTimeout))
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs(Request{
		URL:             "https://example/stream",
		Quality:         clip.QualityHigh,
		DurationSeconds: 15,
		OutputPath:      "/data/captures/j1.mp4",
	})
	assert.Equal(t, []string{
		"--newline",
		"--no-playlist",
		"-f", "best[height<=1080]/best",
		"--download-sections", "*0-15",
		"-o", "/data/captures/j1.mp4",
		"https://example/stream",
	}, args)
}

func TestBuildArgsNoDuration(t *testing.T) {
	args := BuildArgs(Request{URL: "u", Quality: clip.QualityDefault, OutputPath: "o"})
	assert.NotContains(t, args, "--download-sections")
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		q    clip.Quality
		want string
	}{
		{clip.QualityLow, "worst[height>=480]/worst"},
		{clip.QualityMedium, "best[height<=720]/best"},
		{clip.QualityHigh, "best[height<=1080]/best"},
		{clip.QualityDefault, "best"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSelector(tt.q))
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[download]  45.0% of ~10MiB at 2MiB/s", 45.0, true},
		{"[download] 100% of 10MiB", 100, true},
		{"[download]   0.5%", 0.5, true},
		{"frame=100 fps=25", 0, false},
		{"", 0, false},
		{"999.9% nonsense", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePercent(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.want, got, "line %q", tt.line)
		}
	}
}
