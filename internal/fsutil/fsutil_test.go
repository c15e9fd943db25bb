// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	require.NoError(t, EnsureDir(dir))
}

func TestNonEmptyFile(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	assert.False(t, NonEmptyFile(empty))

	full := filepath.Join(dir, "full")
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o600))
	assert.True(t, NonEmptyFile(full))

	assert.False(t, NonEmptyFile(filepath.Join(dir, "missing")))
	assert.False(t, NonEmptyFile(dir))
}

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.mp4"), []byte("x"), 0o600))

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"plain file", "ok.mp4", false},
		{"missing but inside", "later.mp4", false},
		{"traversal", "../etc/passwd", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", `..\..\boot.ini`, true},
		{"dot dot only", "..", true},
		{"normalised inside", "sub/../ok.mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestConfineRelPathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ConfineRelPath(root, "link/secret")
	assert.Error(t, err)
}
