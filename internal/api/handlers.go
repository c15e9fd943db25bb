// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamclip/clipd/internal/clip"
	"github.com/streamclip/clipd/internal/clip/store"
	"github.com/streamclip/clipd/internal/log"
)

// captureRequest is the body of POST /api/capture. Platform is accepted for
// client compatibility but carries no behavior.
type captureRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Quality  string `json:"quality"`
	Duration int    `json:"duration"`
}

// captureResponse acknowledges an accepted capture request.
type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// clipView is the public projection of a job record.
type clipView struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Preview   string  `json:"preview,omitempty"`
	Error     string  `json:"error,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

func (s *Server) viewOf(job *clip.Job) clipView {
	v := clipView{
		ID:        job.ID,
		Status:    string(job.State),
		Progress:  job.Progress,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.State == clip.StateReady {
		v.Preview = "/previews/" + job.ID + ".mp4"
	}
	return v
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), s.logger)

	var req captureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeValidationError(w, "request body must be valid JSON")
		return
	}

	// Validation happens before any job record exists; a rejected request
	// never allocates an ID.
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeValidationError(w, "url is required")
		return
	}
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		writeValidationError(w, "url must be absolute")
		return
	}

	duration := req.Duration
	if duration <= 0 {
		duration = s.deps.Config.DefaultClipSeconds
	}
	if duration > s.deps.Config.MaxClipSeconds {
		duration = s.deps.Config.MaxClipSeconds
	}

	spec := clip.Spec{
		URL:             req.URL,
		Quality:         clip.ParseQuality(req.Quality),
		DurationSeconds: duration,
	}

	id, err := s.deps.Jobs.Start(r.Context(), spec)
	if err != nil {
		logger.Error().Err(err).Msg("capture request rejected")
		writeServiceUnavailable(w, "service is shutting down")
		return
	}

	logger.Info().
		Str(log.FieldJobID, id).
		Str(log.FieldSourceURL, spec.URL).
		Str(log.FieldQuality, string(spec.Quality)).
		Int(log.FieldDuration, spec.DurationSeconds).
		Msg("capture accepted")

	writeJSON(w, http.StatusAccepted, captureResponse{ID: id, Status: string(clip.StateCapturing)})
}

func (s *Server) handleGetClip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.deps.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, s.viewOf(job))
}

func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.Store.List(r.Context())
	if err != nil {
		writeInternalError(w)
		return
	}

	views := make([]clipView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, s.viewOf(job))
	}
	writeJSON(w, http.StatusOK, views)
}
