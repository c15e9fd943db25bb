// SPDX-License-Identifier: MIT

// Package orchestrator drives clip jobs through the capture and transcode
// stages, translating stage events into registry state transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamclip/clipd/internal/capture"
	"github.com/streamclip/clipd/internal/clip"
	"github.com/streamclip/clipd/internal/clip/store"
	"github.com/streamclip/clipd/internal/log"
	"github.com/streamclip/clipd/internal/metrics"
	"github.com/streamclip/clipd/internal/stage"
	"github.com/streamclip/clipd/internal/transcode"
)

// detailCaptureFailed is the client-visible capture failure detail. Stable
// string: the UI matches on it. Transcode failures carry the engine's reason
// instead, which is more actionable for a bad input file.
const detailCaptureFailed = "Failed to capture stream"

// ErrShuttingDown is returned by Start once shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// CaptureRunner starts one capture process and streams its events.
type CaptureRunner interface {
	Start(ctx context.Context, req capture.Request) <-chan stage.Event
}

// TranscodeRunner starts one transcode process and streams its events.
type TranscodeRunner interface {
	Start(ctx context.Context, req transcode.Request) <-chan stage.Event
}

// Config carries the orchestration knobs derived from the daemon config.
type Config struct {
	CapturesDir      string
	PreviewsDir      string
	CaptureTimeout   time.Duration
	TranscodeTimeout time.Duration
	PreviewMaxWidth  int
}

// Orchestrator owns the per-job pipeline goroutines. One instance serves the
// whole daemon.
type Orchestrator struct {
	store     store.Store
	capture   CaptureRunner
	transcode TranscodeRunner
	cfg       Config
	logger    zerolog.Logger

	mu     sync.Mutex
	runs   map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New wires an orchestrator over the given registry and stage runners.
func New(st store.Store, cr CaptureRunner, tr TranscodeRunner, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     st,
		capture:   cr,
		transcode: tr,
		cfg:       cfg,
		logger:    log.WithComponent("orchestrator"),
		runs:      make(map[string]context.CancelFunc),
	}
}

// Start registers a new job and launches its pipeline. It returns the job ID
// immediately; all stage work happens asynchronously.
func (o *Orchestrator) Start(ctx context.Context, spec clip.Spec) (string, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	o.mu.Unlock()

	job, err := o.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	metrics.RecordJobCreated()

	// The pipeline outlives the HTTP request; it gets its own context, bounded
	// per stage, cancelled only on shutdown.
	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = log.ContextWithJobID(runCtx, job.ID)
	if rid := log.RequestIDFromContext(ctx); rid != "" {
		runCtx = log.ContextWithRequestID(runCtx, rid)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		o.fail(job.ID, "capture", clip.ReasonShutdown, detailCaptureFailed)
		return "", ErrShuttingDown
	}
	o.runs[job.ID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go o.runJob(runCtx, job.ID, spec)
	return job.ID, nil
}

// Shutdown cancels all running pipelines and waits for them to finish or for
// ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, cancel := range o.runs {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports the number of active pipelines.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs)
}

func (o *Orchestrator) runJob(ctx context.Context, jobID string, spec clip.Spec) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.runs[jobID]; ok {
			cancel()
			delete(o.runs, jobID)
		}
		o.mu.Unlock()
	}()

	logger := log.WithContext(ctx, o.logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("job pipeline panicked")
			o.fail(jobID, "capture", clip.ReasonCaptureFailed, detailCaptureFailed)
		}
	}()

	sourcePath, ok := o.runCapture(ctx, jobID, spec, logger)
	if !ok {
		return
	}

	o.runTranscode(ctx, jobID, spec, sourcePath, logger)
}

// runCapture drives the capture stage. On success it returns the raw capture
// path and moves the job into the processing state.
func (o *Orchestrator) runCapture(ctx context.Context, jobID string, spec clip.Spec, logger zerolog.Logger) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	defer cancel()

	events := o.capture.Start(cctx, capture.Request{
		URL:             spec.URL,
		Quality:         spec.Quality,
		DurationSeconds: spec.DurationSeconds,
		OutputPath:      filepath.Join(o.cfg.CapturesDir, jobID+".mp4"),
	})

	terminal := o.consume(jobID, events)
	if terminal.Err != nil {
		reason := classifyCapture(terminal.Err)
		logger.Warn().Err(terminal.Err).Str("reason", string(reason)).Msg("capture stage failed")
		o.fail(jobID, "capture", reason, detailCaptureFailed)
		return "", false
	}

	sourcePath := terminal.Output
	_, err := o.store.Update(context.Background(), jobID, func(j *clip.Job) error {
		j.State = clip.StateProcessing
		j.Progress = 0
		j.SourcePath = sourcePath
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("capture-to-processing transition failed")
		return "", false
	}

	logger.Info().Str(log.FieldPath, sourcePath).Msg("capture stage complete")
	return sourcePath, true
}

// runTranscode drives the transcode stage and settles the job.
func (o *Orchestrator) runTranscode(ctx context.Context, jobID string, spec clip.Spec, sourcePath string, logger zerolog.Logger) {
	tctx, cancel := context.WithTimeout(ctx, o.cfg.TranscodeTimeout)
	defer cancel()

	events := o.transcode.Start(tctx, transcode.Request{
		InputPath:       sourcePath,
		OutputPath:      filepath.Join(o.cfg.PreviewsDir, jobID+".mp4"),
		DurationSeconds: spec.DurationSeconds,
		MaxWidth:        o.cfg.PreviewMaxWidth,
	})

	terminal := o.consume(jobID, events)
	if terminal.Err != nil {
		reason := classifyTranscode(terminal.Err)
		logger.Warn().Err(terminal.Err).Str("reason", string(reason)).Msg("transcode stage failed")
		o.fail(jobID, "transcode", reason, terminal.Err.Error())
		return
	}

	// The raw capture is consumed; only the preview survives.
	if err := os.Remove(sourcePath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str(log.FieldPath, sourcePath).Msg("raw capture cleanup failed")
	}

	artifact := terminal.Output
	_, err := o.store.Update(context.Background(), jobID, func(j *clip.Job) error {
		j.State = clip.StateReady
		j.Progress = 100
		j.ArtifactPath = artifact
		j.SourcePath = ""
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("ready transition failed")
		return
	}

	metrics.RecordJobFinished("ready", string(clip.ReasonNone))
	logger.Info().Str(log.FieldPath, artifact).Msg("clip ready")
}

// consume drains a stage event stream, forwarding progress to the registry,
// and returns the terminal event.
func (o *Orchestrator) consume(jobID string, events <-chan stage.Event) stage.Event {
	for ev := range events {
		if ev.Terminal {
			return ev
		}
		o.setProgress(jobID, ev.Progress)
	}
	// A runner that closes without a terminal event violates its contract;
	// treat it as a hard failure rather than hang the job.
	return stage.FailedEvent(errors.New("stage closed without terminal event"))
}

var errStaleProgress = errors.New("stale progress")

// setProgress records a progress sample, skipping anything that would move
// the percentage backwards within a stage.
func (o *Orchestrator) setProgress(jobID string, pct float64) {
	_, err := o.store.Update(context.Background(), jobID, func(j *clip.Job) error {
		if j.State.IsTerminal() {
			return errStaleProgress
		}
		if pct <= j.Progress {
			return errStaleProgress
		}
		j.Progress = pct
		return nil
	})
	if err != nil && !errors.Is(err, errStaleProgress) {
		o.logger.Warn().Err(err).Str(log.FieldJobID, jobID).Msg("progress update failed")
	}
}

// fail settles the job in the error state. Already-terminal jobs are left
// untouched.
func (o *Orchestrator) fail(jobID, stageName string, reason clip.Reason, detail string) {
	_, err := o.store.Update(context.Background(), jobID, func(j *clip.Job) error {
		if j.State.IsTerminal() {
			return errStaleProgress
		}
		j.State = clip.StateError
		j.Error = detail
		j.Reason = reason
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleProgress) {
			o.logger.Error().Err(err).Str(log.FieldJobID, jobID).Msg("error transition failed")
		}
		return
	}
	metrics.RecordJobFinished("error", string(reason))
	o.logger.Warn().
		Str(log.FieldJobID, jobID).
		Str(log.FieldStage, stageName).
		Str("reason", string(reason)).
		Msg("job failed")
}

func classifyCapture(err error) clip.Reason {
	switch {
	case errors.Is(err, capture.ErrLaunch):
		return clip.ReasonCaptureLaunch
	case errors.Is(err, stage.ErrTimeout):
		return clip.ReasonStageTimeout
	case errors.Is(err, stage.ErrCancelled):
		return clip.ReasonShutdown
	default:
		return clip.ReasonCaptureFailed
	}
}

func classifyTranscode(err error) clip.Reason {
	switch {
	case errors.Is(err, stage.ErrTimeout):
		return clip.ReasonStageTimeout
	case errors.Is(err, stage.ErrCancelled):
		return clip.ReasonShutdown
	default:
		return clip.ReasonTranscodeFailed
	}
}
