package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an ingestion run.
// Transitions are one-directional: pending -> running -> {completed, failed}.
// There is no retry-from-failed; a new run is started instead.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Ingestion phases reported to progress pollers.
const (
	PhaseInserting       = "inserting"
	PhaseVectorizing     = "vectorizing"
	PhaseCompleted       = "completed"
	PhaseVectorizeFailed = "vectorize_failed"
)

// RunProgress holds the progress fields mutated by every batch callback.
type RunProgress struct {
	Phase            string    `json:"phase"`
	RecordsProcessed int       `json:"records_processed"`
	TotalEstimate    int       `json:"total_records_estimate"`
	Percentage       int       `json:"percentage"`
	CurrentBatch     int       `json:"current_batch"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RunStats is free-form bookkeeping persisted on the run (batch counts,
// truncated error list).
type RunStats struct {
	TotalRecords int      `json:"total_records,omitempty"`
	TotalBatches int      `json:"total_batches,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// IngestionRun is one execution of loading a source file into the record
// store for a dataset.
type IngestionRun struct {
	ID             uuid.UUID   `json:"id"`
	Dataset        string      `json:"dataset"`
	SourceURL      string      `json:"source_url"`
	Status         RunStatus   `json:"status"`
	Progress       RunProgress `json:"progress"`
	VectorizeJobID *uuid.UUID  `json:"vectorize_job_id,omitempty"`
	Stats          RunStats    `json:"stats"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}
