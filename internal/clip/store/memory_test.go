// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamclip/clipd/internal/clip"
)

func TestCreateThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job, err := s.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, clip.StateCapturing, job.State)
	assert.Zero(t, job.Progress)

	// A record must be resolvable immediately after creation.
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestGetUnknownID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUnknownID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Update(context.Background(), "nope", func(*clip.Job) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAppliesWholeTransition(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, err := s.Create(ctx)
	require.NoError(t, err)

	updated, err := s.Update(ctx, job.ID, func(j *clip.Job) error {
		j.State = clip.StateProcessing
		j.Progress = 0
		j.SourcePath = "/tmp/raw.mp4"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, clip.StateProcessing, updated.State)
	assert.Equal(t, "/tmp/raw.mp4", updated.SourcePath)
	assert.False(t, updated.UpdatedAt.Before(job.UpdatedAt))
}

func TestUpdateErrorLeavesRecordUntouched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, err := s.Create(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Update(ctx, job.ID, func(j *clip.Job) error {
		j.State = clip.StateError
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, clip.StateCapturing, got.State)
}

func TestReturnedCopiesAreDetached(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, err := s.Create(ctx)
	require.NoError(t, err)

	// Mutating a returned copy must not leak into the registry.
	job.State = clip.StateError
	job.Error = "tampered"

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, clip.StateCapturing, got.State)
	assert.Empty(t, got.Error)
}

func TestConcurrentUpdatesDoNotInterleave(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, err := s.Create(ctx)
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, job.ID, func(j *clip.Job) error {
				j.Progress++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	// Every mutation applied exactly once: no lost updates.
	assert.Equal(t, float64(writers), got.Progress)
}

func TestCreateIDsAreUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		job, err := s.Create(ctx)
		require.NoError(t, err)
		require.False(t, seen[job.ID], "duplicate job ID %s", job.ID)
		seen[job.ID] = true
	}
}

func TestListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx)
		require.NoError(t, err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i-1].CreatedAt.Before(list[i].CreatedAt))
	}
}

func TestInstrumentedStoreDelegates(t *testing.T) {
	s := NewInstrumentedStore(NewMemoryStore())
	ctx := context.Background()

	job, err := s.Create(ctx)
	require.NoError(t, err)

	_, err = s.Get(ctx, job.ID)
	require.NoError(t, err)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
