// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewServed(t *testing.T) {
	srv, _, _, cfg := testServer(t)
	require.NoError(t, os.MkdirAll(cfg.PreviewsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PreviewsDir(), "j1.mp4"), []byte("clip-bytes"), 0o600))

	rec := doJSON(t, srv.Router(), "GET", "/previews/j1.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "clip-bytes", rec.Body.String())
}

func TestPreviewUnknownFile(t *testing.T) {
	srv, _, _, cfg := testServer(t)
	require.NoError(t, os.MkdirAll(cfg.PreviewsDir(), 0o755))

	rec := doJSON(t, srv.Router(), "GET", "/previews/missing.mp4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewTraversalRejected(t *testing.T) {
	srv, _, _, cfg := testServer(t)
	require.NoError(t, os.MkdirAll(cfg.PreviewsDir(), 0o755))
	// A real file outside the previews root that must stay unreachable.
	secret := filepath.Join(cfg.DataDir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))

	router := srv.Router()
	for _, target := range []string{
		"/previews/../secret.txt",
		"/previews/..%2Fsecret.txt",
		"/previews/%2e%2e/secret.txt",
	} {
		req := httptest.NewRequest("GET", target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusOK, rec.Code, "target %s", target)
		assert.NotContains(t, rec.Body.String(), "secret", "target %s", target)
	}
}

func TestPreviewSymlinkEscapeRejected(t *testing.T) {
	srv, _, _, cfg := testServer(t)
	require.NoError(t, os.MkdirAll(cfg.PreviewsDir(), 0o755))

	outside := filepath.Join(t.TempDir(), "outside.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("outside"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(cfg.PreviewsDir(), "link.mp4")))

	rec := doJSON(t, srv.Router(), "GET", "/previews/link.mp4", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPreviewDirectoryListingRejected(t *testing.T) {
	srv, _, _, cfg := testServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.PreviewsDir(), "sub"), 0o755))

	rec := doJSON(t, srv.Router(), "GET", "/previews/sub/", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
