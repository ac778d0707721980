package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one persisted sentiment/price snapshot for a symbol.
// Rows are append-only: the same payload written twice yields two rows.
type Observation struct {
	ID               int64
	Symbol           string
	Sentiment        decimal.Decimal
	Price            decimal.Decimal
	Interactions24h  int64
	PercentChange24h decimal.Decimal
	GalaxyScore      decimal.Decimal
	CreatedAt        time.Time
}

// JobStatus is the processing-job state machine label.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobRecord tracks one end-to-end processing run.
// Transitions: pending → processing → completed|failed, never revisited.
type JobRecord struct {
	ID              string
	Status          JobStatus
	CoinsProcessed  int
	AlertsGenerated int
	DurationMS      *int64
	ErrorMessage    *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}
