// SPDX-License-Identifier: MIT

// Package transcode runs the external transcode engine (ffmpeg) for the
// second stage of a clip job.
package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamclip/clipd/internal/fsutil"
	"github.com/streamclip/clipd/internal/log"
	"github.com/streamclip/clipd/internal/metrics"
	"github.com/streamclip/clipd/internal/procgroup"
	"github.com/streamclip/clipd/internal/stage"
)

var (
	// ErrLaunch reports that the transcode engine could not be spawned.
	ErrLaunch = errors.New("transcode engine could not be started")

	// ErrStalled reports that the engine stopped making progress and was
	// killed by the watchdog.
	ErrStalled = errors.New("transcode engine stalled")
)

// ExitError reports a transcode process that exited non-zero.
type ExitError struct {
	Code   int
	Stderr []string
}

func (e *ExitError) Error() string {
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("transcode failed (exit %d): %s", e.Code, e.Stderr[len(e.Stderr)-1])
	}
	return fmt.Sprintf("transcode failed (exit %d)", e.Code)
}

// Request describes one transcode invocation.
type Request struct {
	InputPath  string
	OutputPath string
	// DurationSeconds is the expected clip length, used to derive a percent
	// from the engine's out_time. Zero disables percentage derivation.
	DurationSeconds int
	MaxWidth        int
}

// WatchConfig tunes the progress watchdog.
type WatchConfig struct {
	StartupGrace time.Duration
	StallTimeout time.Duration
	Tick         time.Duration
}

func defaultWatchConfig() WatchConfig {
	return WatchConfig{
		StartupGrace: 30 * time.Second,
		StallTimeout: 2 * time.Minute,
		Tick:         5 * time.Second,
	}
}

// Runner launches one transcode process per Start call.
type Runner struct {
	bin   string
	grace time.Duration
	watch WatchConfig
}

// NewRunner creates a transcode runner for the given ffmpeg binary.
func NewRunner(bin string, killGrace time.Duration) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &Runner{bin: bin, grace: killGrace, watch: defaultWatchConfig()}
}

// NewRunnerWithWatch creates a runner with a custom watchdog configuration.
func NewRunnerWithWatch(bin string, killGrace time.Duration, watch WatchConfig) *Runner {
	r := NewRunner(bin, killGrace)
	if watch.Tick > 0 {
		r.watch = watch
	}
	return r
}

// progressUpdate is one flushed block of the engine's key=value output.
type progressUpdate struct {
	outTimeUs int64
	totalSize int64
	frame     int64
	end       bool
}

func (p progressUpdate) hasAdvanced(prev progressUpdate) bool {
	return p.outTimeUs > prev.outTimeUs || p.totalSize > prev.totalSize || p.frame > prev.frame
}

// parseProgress reads key=value lines from r and sends one update per
// "progress" flush key.
func parseProgress(r io.Reader, ch chan<- progressUpdate) {
	defer close(ch)
	scanner := bufio.NewScanner(r)
	var current progressUpdate

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, val, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "out_time_us":
			if v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				current.outTimeUs = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				current.totalSize = v
			}
		case "frame":
			if v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				current.frame = v
			}
		case "progress":
			current.end = strings.TrimSpace(val) == "end"
			select {
			case ch <- current:
			default:
				// Supervisor is behind; skipping one flush is harmless.
			}
		}
	}
}

// percentOf derives a display percentage from the engine out_time. Capped
// below 100 so only an explicit success can complete the stage.
func percentOf(outTimeUs int64, durationSeconds int) (float64, bool) {
	if durationSeconds <= 0 || outTimeUs < 0 {
		return 0, false
	}
	pct := float64(outTimeUs) / (float64(durationSeconds) * 1e6) * 100
	if pct > 99.9 {
		pct = 99.9
	}
	return pct, true
}

// Start launches the transcode process and returns its event stream: zero or
// more progress events, exactly one terminal event, then the channel closes.
// The output is written to a temporary path and promoted only on success, so
// a partial artifact can never be observed at OutputPath.
func (r *Runner) Start(ctx context.Context, req Request) <-chan stage.Event {
	events := make(chan stage.Event, 64)
	go r.run(ctx, req, events)
	return events
}

func (r *Runner) run(ctx context.Context, req Request, events chan<- stage.Event) {
	defer close(events)
	logger := log.WithContext(ctx, log.WithComponent("transcode"))

	tmpPath := req.OutputPath + ".part.mp4"
	args := BuildPreviewArgs(req.InputPath, tmpPath, req.MaxWidth)

	cmd := exec.Command(r.bin, args...) // #nosec G204 -- binary from config, args built above
	procgroup.Set(cmd)

	ring := stage.NewLineRing(64)
	cmd.Stderr = ring

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		metrics.RecordStageExit("transcode", "spawn_failed")
		events <- stage.FailedEvent(fmt.Errorf("%w: %v", ErrLaunch, err))
		return
	}

	if err := cmd.Start(); err != nil {
		metrics.RecordStageExit("transcode", "spawn_failed")
		logger.Error().Err(err).Str(log.FieldPath, r.bin).Msg("transcode engine spawn failed")
		events <- stage.FailedEvent(fmt.Errorf("%w: %v", ErrLaunch, err))
		return
	}

	start := time.Now()
	logger.Info().
		Str(log.FieldPath, req.InputPath).
		Int(log.FieldDuration, req.DurationSeconds).
		Msg("transcode started")

	progressCh := make(chan progressUpdate, 100)
	parseDone := make(chan struct{})
	go func() {
		defer close(parseDone)
		parseProgress(stdout, progressCh)
	}()

	waitCh := make(chan error, 1)
	go func() {
		<-parseDone // drain the pipe before Wait closes it
		waitCh <- cmd.Wait()
	}()

	waitErr, supervised := r.supervise(ctx, cmd, waitCh, progressCh, req, events, logger)

	metrics.ObserveStageDuration("transcode", time.Since(start).Seconds())

	if supervised != nil {
		_ = os.Remove(tmpPath)
		events <- stage.FailedEvent(supervised)
		return
	}

	if waitErr != nil {
		code := 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		stderr := ring.LastN(20)
		metrics.RecordStageExit("transcode", "nonzero")
		logger.Error().
			Int(log.FieldExitCode, code).
			Strs("stderr", stderr).
			Msg("transcode engine failed")
		_ = os.Remove(tmpPath)
		events <- stage.FailedEvent(&ExitError{Code: code, Stderr: stderr})
		return
	}

	if !fsutil.NonEmptyFile(tmpPath) {
		metrics.RecordStageExit("transcode", "nonzero")
		logger.Error().Str(log.FieldPath, tmpPath).Msg("transcode engine exited 0 but produced no output")
		_ = os.Remove(tmpPath)
		events <- stage.FailedEvent(&ExitError{Code: 0, Stderr: ring.LastN(20)})
		return
	}

	// Promote the finished file; an in-directory rename is atomic.
	if err := os.Rename(tmpPath, req.OutputPath); err != nil {
		metrics.RecordStageExit("transcode", "nonzero")
		_ = os.Remove(tmpPath)
		events <- stage.FailedEvent(fmt.Errorf("promote preview artifact: %w", err))
		return
	}

	metrics.RecordStageExit("transcode", "ok")
	logger.Info().Str(log.FieldPath, req.OutputPath).Dur("uptime", time.Since(start)).Msg("transcode finished")
	events <- stage.DoneEvent(req.OutputPath)
}

// supervise waits for process exit while forwarding progress and enforcing
// the stall watchdog. It returns (waitErr, nil) on a normal exit and
// (_, reason) when the process was torn down.
func (r *Runner) supervise(
	ctx context.Context,
	cmd *exec.Cmd,
	waitCh <-chan error,
	progressCh <-chan progressUpdate,
	req Request,
	events chan<- stage.Event,
	logger zerolog.Logger,
) (waitErr error, teardown error) {
	start := time.Now()
	lastProgressAt := start
	var last progressUpdate

	ticker := time.NewTicker(r.watch.Tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-waitCh:
			// The parser has finished before Wait returns, so progressCh is
			// closed; flush whatever the select raced past.
			if progressCh != nil {
				for p := range progressCh {
					if pct, ok := percentOf(p.outTimeUs, req.DurationSeconds); ok {
						select {
						case events <- stage.ProgressEvent(pct):
						default:
						}
					}
				}
			}
			return err, nil

		case <-ctx.Done():
			_ = procgroup.Terminate(cmd, waitCh, r.grace)
			reason := stage.ErrCancelled
			class := "cancelled"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = stage.ErrTimeout
				class = "timeout"
			}
			metrics.RecordStageExit("transcode", class)
			logger.Warn().Dur("uptime", time.Since(start)).Msg("transcode torn down")
			return nil, reason

		case p, ok := <-progressCh:
			if !ok {
				// Parser ended; keep waiting for the exit.
				progressCh = nil
				continue
			}
			if p.hasAdvanced(last) {
				last = p
				lastProgressAt = time.Now()
			}
			if pct, ok := percentOf(p.outTimeUs, req.DurationSeconds); ok {
				select {
				case events <- stage.ProgressEvent(pct):
				default:
					// Consumer is behind; dropping a percentage is harmless.
				}
			}

		case <-ticker.C:
			if time.Since(start) < r.watch.StartupGrace {
				continue
			}
			if time.Since(lastProgressAt) > r.watch.StallTimeout {
				logger.Error().
					Dur("since_progress", time.Since(lastProgressAt)).
					Int64("last_out_time_us", last.outTimeUs).
					Msg("transcode stalled, killing engine")
				_ = procgroup.Terminate(cmd, waitCh, r.grace)
				metrics.RecordStageExit("transcode", "timeout")
				return nil, ErrStalled
			}
		}
	}
}
