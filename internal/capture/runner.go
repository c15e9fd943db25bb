// SPDX-License-Identifier: MIT

// Package capture runs the external stream capture engine (yt-dlp compatible)
// for the first stage of a clip job.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/streamclip/clipd/internal/clip"
	"github.com/streamclip/clipd/internal/fsutil"
	"github.com/streamclip/clipd/internal/log"
	"github.com/streamclip/clipd/internal/metrics"
	"github.com/streamclip/clipd/internal/procgroup"
	"github.com/streamclip/clipd/internal/stage"
)

// ErrLaunch reports that the capture engine process could not be spawned.
var ErrLaunch = errors.New("capture engine could not be started")

// ExitError reports a capture process that exited non-zero.
type ExitError struct {
	Code   int
	Stderr []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("capture engine exited with code %d", e.Code)
}

// Request describes one capture invocation.
type Request struct {
	URL             string
	Quality         clip.Quality
	DurationSeconds int
	OutputPath      string
}

// Runner launches one capture process per Start call. It holds no per-job
// state; a single Runner serves all jobs.
type Runner struct {
	bin   string
	grace time.Duration
}

// NewRunner creates a capture runner for the given engine binary.
func NewRunner(bin string, killGrace time.Duration) *Runner {
	if bin == "" {
		bin = "yt-dlp"
	}
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &Runner{bin: bin, grace: killGrace}
}

// BuildArgs assembles the engine command line for a request.
func BuildArgs(req Request) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"-f", FormatSelector(req.Quality),
	}
	if req.DurationSeconds > 0 {
		args = append(args, "--download-sections", fmt.Sprintf("*0-%d", req.DurationSeconds))
	}
	args = append(args, "-o", req.OutputPath, req.URL)
	return args
}

// percentRe extracts a NN.NN% token from engine output. Lines without a
// match carry no progress information and are skipped.
var percentRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)

// ParsePercent extracts a progress percentage from one output line.
func ParsePercent(line string) (float64, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// Start launches the capture process and returns its event stream. The
// channel carries zero or more progress events followed by exactly one
// terminal event, then closes. Cancelling ctx tears down the process group;
// a deadline on ctx is the stage's wall-clock bound.
func (r *Runner) Start(ctx context.Context, req Request) <-chan stage.Event {
	events := make(chan stage.Event, 64)
	go r.run(ctx, req, events)
	return events
}

func (r *Runner) run(ctx context.Context, req Request, events chan<- stage.Event) {
	defer close(events)
	logger := log.WithContext(ctx, log.WithComponent("capture"))

	args := BuildArgs(req)
	cmd := exec.Command(r.bin, args...) // #nosec G204 -- binary from config, args built above
	procgroup.Set(cmd)

	ring := stage.NewLineRing(64)
	cmd.Stderr = ring

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		metrics.RecordStageExit("capture", "spawn_failed")
		events <- stage.FailedEvent(fmt.Errorf("%w: %v", ErrLaunch, err))
		return
	}

	if err := cmd.Start(); err != nil {
		metrics.RecordStageExit("capture", "spawn_failed")
		logger.Error().Err(err).Str(log.FieldPath, r.bin).Msg("capture engine spawn failed")
		events <- stage.FailedEvent(fmt.Errorf("%w: %v", ErrLaunch, err))
		return
	}

	start := time.Now()
	logger.Info().
		Str(log.FieldSourceURL, req.URL).
		Str(log.FieldQuality, string(req.Quality)).
		Int(log.FieldDuration, req.DurationSeconds).
		Msg("capture started")

	// Drain stdout line-by-line; at most one progress event per line.
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			pct, ok := ParsePercent(scanner.Text())
			if !ok {
				continue
			}
			select {
			case events <- stage.ProgressEvent(pct):
			default:
				// Consumer is behind; dropping a percentage is harmless.
			}
		}
	}()

	waitCh := make(chan error, 1)
	go func() {
		<-scanDone // drain the pipe before Wait closes it
		waitCh <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, r.grace)
		reason := stage.ErrCancelled
		class := "cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = stage.ErrTimeout
			class = "timeout"
		}
		metrics.RecordStageExit("capture", class)
		logger.Warn().Dur("uptime", time.Since(start)).Msg("capture torn down")
		events <- stage.FailedEvent(reason)
		return
	}

	metrics.ObserveStageDuration("capture", time.Since(start).Seconds())

	if waitErr != nil {
		code := 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		stderr := ring.LastN(20)
		metrics.RecordStageExit("capture", "nonzero")
		logger.Error().
			Int(log.FieldExitCode, code).
			Strs("stderr", stderr).
			Msg("capture engine failed")
		events <- stage.FailedEvent(&ExitError{Code: code, Stderr: stderr})
		return
	}

	if !fsutil.NonEmptyFile(req.OutputPath) {
		metrics.RecordStageExit("capture", "nonzero")
		logger.Error().Str(log.FieldPath, req.OutputPath).Msg("capture engine exited 0 but produced no output")
		events <- stage.FailedEvent(&ExitError{Code: 0, Stderr: ring.LastN(20)})
		return
	}

	metrics.RecordStageExit("capture", "ok")
	logger.Info().Str(log.FieldPath, req.OutputPath).Dur("uptime", time.Since(start)).Msg("capture finished")
	events <- stage.DoneEvent(req.OutputPath)
}
