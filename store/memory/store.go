// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/id"
	"github.com/xraph/renderq/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store    = (*Store)(nil)
	_ health.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs          map[string]*job.Job
	healthRecords map[string]*health.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:          make(map[string]*job.Job),
		healthRecords: make(map[string]*health.Record),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job in queued status.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return renderq.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, renderq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return renderq.ErrJobNotFound
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return renderq.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ClaimJob atomically transitions an eligible job to processing. The whole
// check-and-set happens under the store lock, so exactly one concurrent
// caller wins.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return false, renderq.ErrJobNotFound
	}

	now := time.Now().UTC()
	if !j.Eligible(now) {
		return false, nil
	}
	if err := j.MarkProcessing(workerID, now); err != nil {
		return false, nil
	}
	return true, nil
}

// ListEligible returns up to limit queued jobs in the lane that are past
// any backoff delay, oldest first.
func (m *Store) ListEligible(_ context.Context, lane job.Lane, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	eligible := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Lane != lane {
			continue
		}
		if !j.Eligible(now) {
			continue
		}
		cp := *j
		eligible = append(eligible, &cp)
	}

	sort.Slice(eligible, func(i, k int) bool {
		return eligible[i].CreatedAt.Before(eligible[k].CreatedAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// CancelJob atomically applies cancellation semantics under the store lock.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, renderq.ErrJobNotFound
	}

	now := time.Now().UTC()
	switch j.Status {
	case job.StatusQueued:
		if err := j.MarkCancelled(now); err != nil {
			return nil, err
		}
	case job.StatusProcessing:
		j.CancelRequested = true
		j.UpdatedAt = now
	case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
		// Terminal: unchanged.
	}

	cp := *j
	return &cp, nil
}

// ListJobsByStatus returns jobs matching the given status, newest first.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*job.Job{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		n++
	}
	return n, nil
}

// HeartbeatJob updates the heartbeat timestamp for a processing job owned
// by the given worker.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return renderq.ErrJobNotFound
	}
	if j.Status != job.StatusProcessing || j.WorkerID.String() != workerID.String() {
		return renderq.ErrJobNotFound
	}

	now := time.Now().UTC()
	j.HeartbeatAt = &now
	j.UpdatedAt = now
	return nil
}

// ReapStaleJobs returns processing jobs whose last heartbeat is older than
// the given threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	stale := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Status != job.StatusProcessing {
			continue
		}
		if j.HeartbeatAt == nil || j.HeartbeatAt.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// RequeueStale atomically re-queues a processing job whose heartbeat is
// still stale. The whole check-and-set happens under the store lock, so a
// worker that finished in the meantime keeps its terminal record.
func (m *Store) RequeueStale(_ context.Context, jobID id.JobID, cutoff time.Time, lastError string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return false, renderq.ErrJobNotFound
	}
	if j.Status != job.StatusProcessing {
		return false, nil
	}
	if j.HeartbeatAt != nil && !j.HeartbeatAt.Before(cutoff) {
		return false, nil
	}

	now := time.Now().UTC()
	if err := j.MarkRequeued(lastError, now, now); err != nil {
		return false, err
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Health Store
// ──────────────────────────────────────────────────

// UpsertProviderHealth inserts or replaces a provider health record.
func (m *Store) UpsertProviderHealth(_ context.Context, rec *health.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.healthRecords[rec.Provider] = &cp
	return nil
}

// GetProviderHealth retrieves the health record for a provider.
func (m *Store) GetProviderHealth(_ context.Context, provider string) (*health.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.healthRecords[provider]
	if !ok {
		return nil, renderq.ErrHealthNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListProviderHealth returns all provider health records in stable order.
func (m *Store) ListProviderHealth(_ context.Context) ([]*health.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*health.Record, 0, len(m.healthRecords))
	for _, rec := range m.healthRecords {
		cp := *rec
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, k int) bool {
		return records[i].Provider < records[k].Provider
	})
	return records, nil
}
