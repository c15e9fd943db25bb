// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/streamclip/clipd/internal/fsutil"
	"github.com/streamclip/clipd/internal/log"
)

// handlePreview serves finished preview clips confined to the previews
// directory. No directory listing, no traversal, no symlink escape.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), s.logger)

	raw := chi.URLParam(r, "*")
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" || strings.HasSuffix(name, "/") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if strings.ContainsRune(name, 0) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	full, err := fsutil.ConfineRelPath(s.deps.Config.PreviewsDir(), name)
	if err != nil {
		logger.Warn().Str(log.FieldPath, raw).Msg("preview request rejected")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if !fsutil.NonEmptyFile(full) {
		writeNotFound(w)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, full)
}
