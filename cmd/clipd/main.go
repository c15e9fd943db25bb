// SPDX-License-Identifier: MIT

// clipd captures a segment of a live or on-demand stream and transcodes it
// into a small web-playable preview clip, exposing an HTTP polling API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamclip/clipd/internal/api"
	"github.com/streamclip/clipd/internal/capture"
	"github.com/streamclip/clipd/internal/clip/store"
	"github.com/streamclip/clipd/internal/config"
	"github.com/streamclip/clipd/internal/fsutil"
	"github.com/streamclip/clipd/internal/health"
	"github.com/streamclip/clipd/internal/log"
	"github.com/streamclip/clipd/internal/orchestrator"
	"github.com/streamclip/clipd/internal/transcode"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logger := log.WithComponent("daemon")
		logger.Fatal().Err(err).Msg("clipd exited with error")
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "clipd",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Msg("configuration loaded")

	for _, dir := range []string{cfg.CapturesDir(), cfg.PreviewsDir()} {
		if err := fsutil.EnsureDir(dir); err != nil {
			return fmt.Errorf("bootstrap data directory: %w", err)
		}
	}

	registry := store.NewInstrumentedStore(store.NewMemoryStore())

	orch := orchestrator.New(
		registry,
		capture.NewRunner(cfg.CaptureBin, cfg.KillGrace),
		transcode.NewRunner(cfg.FFmpegBin, cfg.KillGrace),
		orchestrator.Config{
			CapturesDir:      cfg.CapturesDir(),
			PreviewsDir:      cfg.PreviewsDir(),
			CaptureTimeout:   cfg.CaptureTimeout,
			TranscodeTimeout: cfg.TranscodeTimeout,
			PreviewMaxWidth:  cfg.PreviewMaxWidth,
		},
	)

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewBinaryChecker("capture_engine", cfg.CaptureBin))
	healthMgr.RegisterChecker(health.NewBinaryChecker("transcode_engine", cfg.FFmpegBin))
	healthMgr.RegisterChecker(health.NewDirWritableChecker("data_dir", cfg.DataDir))

	server := api.New(api.Deps{
		Store:  registry,
		Jobs:   orch,
		Health: healthMgr,
		Config: cfg,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("addr", cfg.ListenAddr).
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Msg("starting clipd")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str(log.FieldEvent, "shutdown").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop accepting requests first, then drain the running pipelines.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		if err := orch.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("pipeline drain incomplete")
		}
		return nil
	})

	return g.Wait()
}
