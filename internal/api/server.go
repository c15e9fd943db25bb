// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of clipd: the capture endpoint, the
// job poll endpoints, preview serving and the operational probes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/streamclip/clipd/internal/clip"
	"github.com/streamclip/clipd/internal/clip/store"
	"github.com/streamclip/clipd/internal/config"
	"github.com/streamclip/clipd/internal/health"
	"github.com/streamclip/clipd/internal/log"
)

// JobStarter accepts a validated capture request and returns the job ID.
type JobStarter interface {
	Start(ctx context.Context, spec clip.Spec) (string, error)
}

// Deps holds the collaborators of the API server.
type Deps struct {
	Store  store.Store
	Jobs   JobStarter
	Health *health.Manager
	Config config.Config
}

// Server is the clipd HTTP server.
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates an API server over the given dependencies.
func New(deps Deps) *Server {
	return &Server{
		deps:   deps,
		logger: log.WithComponent("api"),
	}
}

// Router assembles the full route tree with the canonical middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(cors)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.deps.Config.RateLimitPerMinute > 0 {
				r.Use(captureRateLimit(s.deps.Config.RateLimitPerMinute, time.Minute))
			}
			r.Post("/capture", s.handleCapture)
		})
		r.Get("/clips", s.handleListClips)
		r.Get("/clips/{id}", s.handleGetClip)
	})

	r.Get("/previews/*", s.handlePreview)

	return r
}
