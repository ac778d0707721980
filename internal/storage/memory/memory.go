// Package memory provides in-memory implementations of the storage
// interfaces, used by tests and by runs without a configured database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentiment-alerts/internal/storage"
)

// Store holds observations and jobs in process memory.
type Store struct {
	mu           sync.RWMutex
	observations []storage.Observation
	nextID       int64
	jobs         map[string]*storage.JobRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*storage.JobRecord)}
}

// InsertObservation appends an observation. A zero CreatedAt is stamped with
// the current time, mirroring the server-set column default.
func (s *Store) InsertObservation(_ context.Context, obs storage.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	obs.ID = s.nextID
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = time.Now().UTC()
	}
	s.observations = append(s.observations, obs)
	return nil
}

// LatestObservation returns the newest observation for the symbol at or
// after since, or nil when none exists.
func (s *Store) LatestObservation(_ context.Context, symbol string, since time.Time) (*storage.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *storage.Observation
	for i := range s.observations {
		obs := s.observations[i]
		if obs.Symbol != symbol || obs.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || obs.CreatedAt.After(latest.CreatedAt) {
			copied := obs
			latest = &copied
		}
	}
	return latest, nil
}

// ListObservations returns the symbol's observations in the window, newest first.
func (s *Store) ListObservations(_ context.Context, symbol string, since time.Time) ([]storage.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []storage.Observation
	for _, obs := range s.observations {
		if obs.Symbol == symbol && !obs.CreatedAt.Before(since) {
			result = append(result, obs)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// ListRecentObservations returns the newest observations across symbols.
func (s *Store) ListRecentObservations(_ context.Context, limit int) ([]storage.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.Observation, len(s.observations))
	copy(result, s.observations)
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.observations)), nil
}

// ClearObservationsBefore drops history older than the cutoff.
func (s *Store) ClearObservationsBefore(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.observations[:0]
	for _, obs := range s.observations {
		if !obs.CreatedAt.Before(olderThan) {
			kept = append(kept, obs)
		}
	}
	s.observations = kept
	return nil
}

// CreateJob inserts a new pending job.
func (s *Store) CreateJob(context.Context) (storage.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := storage.JobRecord{
		ID:        uuid.NewString(),
		Status:    storage.JobPending,
		CreatedAt: time.Now().UTC(),
	}
	stored := rec
	s.jobs[rec.ID] = &stored
	return rec, nil
}

// MarkJobProcessing moves a pending job to processing.
func (s *Store) MarkJobProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != storage.JobPending {
		return storage.ErrInvalidJobState
	}
	job.Status = storage.JobProcessing
	return nil
}

// CompleteJob finalises a processing job.
func (s *Store) CompleteJob(_ context.Context, id string, coinsProcessed, alertsGenerated int, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != storage.JobProcessing {
		return storage.ErrInvalidJobState
	}
	job.Status = storage.JobCompleted
	job.CoinsProcessed = coinsProcessed
	job.AlertsGenerated = alertsGenerated
	ms := duration.Milliseconds()
	job.DurationMS = &ms
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

// FailJob marks a pending or processing job failed.
func (s *Store) FailJob(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || (job.Status != storage.JobPending && job.Status != storage.JobProcessing) {
		return storage.ErrInvalidJobState
	}
	job.Status = storage.JobFailed
	job.ErrorMessage = &message
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

// GetJob returns a copy of the job record, or nil when unknown.
func (s *Store) GetJob(_ context.Context, id string) (*storage.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

// ListRecentJobs returns jobs newest first.
func (s *Store) ListRecentJobs(_ context.Context, limit int) ([]storage.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.JobRecord, 0, len(s.jobs))
	for _, job := range s.jobs {
		result = append(result, *job)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortNewestFirst(observations []storage.Observation) {
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].CreatedAt.After(observations[j].CreatedAt)
	})
}

var (
	_ storage.HistoryStore = (*Store)(nil)
	_ storage.JobStore     = (*Store)(nil)
)
