package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrInvalidJobState indicates a job transition from the wrong state.
	ErrInvalidJobState = errors.New("storage: job not in expected state")
)

const (
	insertObservationSQL = `INSERT INTO sentiment_history (
        symbol,
        sentiment,
        price,
        interactions_24h,
        percent_change_24h,
        galaxy_score
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	latestObservationSQL = `SELECT
        id,
        symbol,
        sentiment,
        price,
        interactions_24h,
        percent_change_24h,
        galaxy_score,
        created_at
    FROM sentiment_history
    WHERE symbol = $1
      AND created_at >= $2
    ORDER BY created_at DESC
    LIMIT 1;`

	listObservationsSQL = `SELECT
        id,
        symbol,
        sentiment,
        price,
        interactions_24h,
        percent_change_24h,
        galaxy_score,
        created_at
    FROM sentiment_history
    WHERE symbol = $1
      AND created_at >= $2
    ORDER BY created_at DESC;`

	listRecentObservationsSQL = `SELECT
        id,
        symbol,
        sentiment,
        price,
        interactions_24h,
        percent_change_24h,
        galaxy_score,
        created_at
    FROM sentiment_history
    ORDER BY created_at DESC
    LIMIT $1;`

	countObservationsSQL = `SELECT COUNT(*) FROM sentiment_history;`

	clearObservationsBeforeSQL = `DELETE FROM sentiment_history WHERE created_at < $1;`

	createJobSQL = `INSERT INTO processing_jobs (id, status)
    VALUES ($1, 'pending')
    RETURNING id, status, coins_processed, alerts_generated, duration_ms, error_message, created_at, completed_at;`

	markJobProcessingSQL = `UPDATE processing_jobs
    SET status = 'processing'
    WHERE id = $1 AND status = 'pending';`

	completeJobSQL = `UPDATE processing_jobs
    SET status = 'completed',
        coins_processed = $2,
        alerts_generated = $3,
        duration_ms = $4,
        completed_at = $5
    WHERE id = $1 AND status = 'processing';`

	failJobSQL = `UPDATE processing_jobs
    SET status = 'failed',
        error_message = $2,
        completed_at = $3
    WHERE id = $1 AND status IN ('pending', 'processing');`

	getJobSQL = `SELECT
        id, status, coins_processed, alerts_generated, duration_ms, error_message, created_at, completed_at
    FROM processing_jobs
    WHERE id = $1;`

	listRecentJobsSQL = `SELECT
        id, status, coins_processed, alerts_generated, duration_ms, error_message, created_at, completed_at
    FROM processing_jobs
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HistoryStore defines operations on the append-only observation log.
type HistoryStore interface {
	InsertObservation(ctx context.Context, obs Observation) error
	LatestObservation(ctx context.Context, symbol string, since time.Time) (*Observation, error)
	ListObservations(ctx context.Context, symbol string, since time.Time) ([]Observation, error)
	ListRecentObservations(ctx context.Context, limit int) ([]Observation, error)
	CountObservations(ctx context.Context) (int64, error)
	ClearObservationsBefore(ctx context.Context, olderThan time.Time) error
}

// JobStore defines the processing-job lifecycle operations.
type JobStore interface {
	CreateJob(ctx context.Context) (JobRecord, error)
	MarkJobProcessing(ctx context.Context, id string) error
	CompleteJob(ctx context.Context, id string, coinsProcessed, alertsGenerated int, duration time.Duration) error
	FailJob(ctx context.Context, id, message string) error
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	ListRecentJobs(ctx context.Context, limit int) ([]JobRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to sentiment history and processing jobs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertObservation appends one observation row. created_at is server-set.
func (s *Store) InsertObservation(ctx context.Context, obs Observation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertObservationSQL,
		obs.Symbol,
		obs.Sentiment.String(),
		obs.Price.String(),
		obs.Interactions24h,
		obs.PercentChange24h.String(),
		obs.GalaxyScore.String(),
	)
	if execErr != nil {
		return fmt.Errorf("insert observation: %w", execErr)
	}
	return nil
}

// LatestObservation returns the newest observation for a symbol created at or
// after since, or nil when the symbol has no history in the window.
func (s *Store) LatestObservation(ctx context.Context, symbol string, since time.Time) (*Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestObservationSQL, symbol, since)
	if queryErr != nil {
		return nil, fmt.Errorf("latest observation: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}

	obs, scanErr := scanObservation(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &obs, nil
}

// ListObservations lists a symbol's observations in the window, newest first.
func (s *Store) ListObservations(ctx context.Context, symbol string, since time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, symbol, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// ListRecentObservations lists the newest observations across all symbols.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// ClearObservationsBefore bulk-deletes history older than the cutoff.
func (s *Store) ClearObservationsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, clearObservationsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("clear observations before: %w", execErr)
	}
	return nil
}

// CreateJob inserts a new pending job and returns the stored record.
func (s *Store) CreateJob(ctx context.Context) (JobRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return JobRecord{}, err
	}

	row := pool.QueryRow(ctx, createJobSQL, uuid.NewString())
	rec, scanErr := scanJob(row)
	if scanErr != nil {
		return JobRecord{}, fmt.Errorf("create job: %w", scanErr)
	}
	return rec, nil
}

// MarkJobProcessing moves a pending job to processing.
func (s *Store) MarkJobProcessing(ctx context.Context, id string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markJobProcessingSQL, id)
	if execErr != nil {
		return fmt.Errorf("mark job processing: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvalidJobState
	}
	return nil
}

// CompleteJob finalises a processing job with its run counters.
func (s *Store) CompleteJob(ctx context.Context, id string, coinsProcessed, alertsGenerated int, duration time.Duration) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, completeJobSQL,
		id, coinsProcessed, alertsGenerated, duration.Milliseconds(), time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("complete job: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvalidJobState
	}
	return nil
}

// FailJob marks a job failed, recording the error message verbatim.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, failJobSQL, id, message, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("fail job: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvalidJobState
	}
	return nil
}

// GetJob fetches a single job record, or nil when unknown.
func (s *Store) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rec, scanErr := scanJob(pool.QueryRow(ctx, getJobSQL, id))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", scanErr)
	}
	return &rec, nil
}

// ListRecentJobs lists the newest job records.
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentJobsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent jobs: %w", queryErr)
	}
	defer rows.Close()

	jobs := make([]JobRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func collectObservations(rows pgx.Rows, sizeHint int) ([]Observation, error) {
	observations := make([]Observation, 0, sizeHint)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanObservation(rows pgx.Rows) (Observation, error) {
	var (
		obs          Observation
		sentimentStr string
		priceStr     string
		pctStr       string
		galaxyStr    string
	)

	if err := rows.Scan(
		&obs.ID,
		&obs.Symbol,
		&sentimentStr,
		&priceStr,
		&obs.Interactions24h,
		&pctStr,
		&galaxyStr,
		&obs.CreatedAt,
	); err != nil {
		return Observation{}, err
	}

	var err error
	if obs.Sentiment, err = decimal.NewFromString(sentimentStr); err != nil {
		return Observation{}, fmt.Errorf("parse sentiment: %w", err)
	}
	if obs.Price, err = decimal.NewFromString(priceStr); err != nil {
		return Observation{}, fmt.Errorf("parse price: %w", err)
	}
	if obs.PercentChange24h, err = decimal.NewFromString(pctStr); err != nil {
		return Observation{}, fmt.Errorf("parse percent change: %w", err)
	}
	if obs.GalaxyScore, err = decimal.NewFromString(galaxyStr); err != nil {
		return Observation{}, fmt.Errorf("parse galaxy score: %w", err)
	}

	return obs, nil
}

func scanJob(row pgx.Row) (JobRecord, error) {
	var (
		rec         JobRecord
		status      string
		durationMS  sql.NullInt64
		errMsg      sql.NullString
		completedAt sql.NullTime
	)

	if err := row.Scan(
		&rec.ID,
		&status,
		&rec.CoinsProcessed,
		&rec.AlertsGenerated,
		&durationMS,
		&errMsg,
		&rec.CreatedAt,
		&completedAt,
	); err != nil {
		return JobRecord{}, err
	}

	rec.Status = JobStatus(status)
	if durationMS.Valid {
		value := durationMS.Int64
		rec.DurationMS = &value
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.ErrorMessage = &msg
	}
	if completedAt.Valid {
		ts := completedAt.Time
		rec.CompletedAt = &ts
	}

	return rec, nil
}
