// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamclip/clipd/internal/clip"
)

// MemoryStore is the in-memory Store. Jobs do not survive a restart; that is
// a contract of the service, not a gap.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*clip.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*clip.Job),
		now:  time.Now,
	}
}

// Create allocates a fresh job in the capturing state with progress 0.
func (m *MemoryStore) Create(_ context.Context) (*clip.Job, error) {
	now := m.now()
	job := &clip.Job{
		ID:        uuid.NewString(),
		State:     clip.StateCapturing,
		Progress:  0,
		Reason:    clip.ReasonNone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	cp := *job
	return &cp, nil
}

// Get returns a copy of the record, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, id string) (*clip.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// Update applies fn as one atomic read-modify-write and returns the updated
// copy. If fn returns an error the record is left untouched.
func (m *MemoryStore) Update(_ context.Context, id string, fn func(*clip.Job) error) (*clip.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *job
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = m.now()
	m.jobs[id] = &cp

	out := cp
	return &out, nil
}

// List returns copies of all records, newest first.
func (m *MemoryStore) List(_ context.Context) ([]*clip.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*clip.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
