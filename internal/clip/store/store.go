// SPDX-License-Identifier: MIT

// Package store provides the job registry: the single shared mutable
// structure of the daemon.
package store

import (
	"context"
	"errors"

	"github.com/streamclip/clipd/internal/clip"
)

// ErrNotFound is returned for lookups of unknown job IDs.
var ErrNotFound = errors.New("job not found")

// Store is the system-of-record for clip jobs.
//
// Design intent:
// - Records are created once and never deleted for the process lifetime.
// - All mutation goes through Update; its mutator is applied as one atomic
//   read-modify-write, so concurrent stage events cannot interleave.
// - Get and List return copies; no caller holds a live reference into the
//   registry.
type Store interface {
	Create(ctx context.Context) (*clip.Job, error)
	Get(ctx context.Context, id string) (*clip.Job, error)
	Update(ctx context.Context, id string, fn func(*clip.Job) error) (*clip.Job, error)
	List(ctx context.Context) ([]*clip.Job, error)
}
