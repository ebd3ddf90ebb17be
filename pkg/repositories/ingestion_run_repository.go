package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sanctio/screening-engine/pkg/database"
	"github.com/sanctio/screening-engine/pkg/models"
)

// IngestionRunRepository provides data access for ingestion runs.
type IngestionRunRepository interface {
	Create(ctx context.Context, run *models.IngestionRun) error

	// Get returns nil, nil when the run does not exist. Callbacks treat an
	// unknown run as an expected no-op, not an error.
	Get(ctx context.Context, id uuid.UUID) (*models.IngestionRun, error)

	// Update persists status, progress, stats and terminal fields.
	Update(ctx context.Context, run *models.IngestionRun) error
}

type ingestionRunRepository struct {
	db *database.DB
}

// NewIngestionRunRepository creates a new IngestionRunRepository.
func NewIngestionRunRepository(db *database.DB) IngestionRunRepository {
	return &ingestionRunRepository{db: db}
}

var _ IngestionRunRepository = (*ingestionRunRepository)(nil)

func (r *ingestionRunRepository) Create(ctx context.Context, run *models.IngestionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now()
	run.StartedAt = now
	run.Progress.UpdatedAt = now
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.Progress.Phase == "" {
		run.Progress.Phase = models.PhaseInserting
	}

	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	query := `
		INSERT INTO ingestion_runs (
			id, dataset, source_url, status, phase, records_processed,
			total_estimate, percentage, current_batch, vectorize_job_id,
			stats, error_message, started_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, query,
		run.ID.String(), run.Dataset, run.SourceURL, run.Status,
		run.Progress.Phase, run.Progress.RecordsProcessed,
		run.Progress.TotalEstimate, run.Progress.Percentage,
		run.Progress.CurrentBatch, jobIDString(run.VectorizeJobID),
		stats, run.ErrorMessage, run.StartedAt, run.Progress.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ingestion run: %w", err)
	}
	return nil
}

func (r *ingestionRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.IngestionRun, error) {
	query := `
		SELECT id, dataset, source_url, status, phase, records_processed,
		       total_estimate, percentage, current_batch, vectorize_job_id,
		       stats, error_message, started_at, finished_at, updated_at
		FROM ingestion_runs
		WHERE id = $1`

	var (
		run      models.IngestionRun
		idStr    string
		jobIDStr *string
		stats    []byte
	)
	err := r.db.QueryRow(ctx, query, id.String()).Scan(
		&idStr, &run.Dataset, &run.SourceURL, &run.Status,
		&run.Progress.Phase, &run.Progress.RecordsProcessed,
		&run.Progress.TotalEstimate, &run.Progress.Percentage,
		&run.Progress.CurrentBatch, &jobIDStr,
		&stats, &run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
		&run.Progress.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get ingestion run: %w", err)
	}

	run.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", idStr, err)
	}
	if jobIDStr != nil && *jobIDStr != "" {
		jobID, err := uuid.Parse(*jobIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid vectorize job id %q: %w", *jobIDStr, err)
		}
		run.VectorizeJobID = &jobID
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &run.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run stats: %w", err)
		}
	}

	return &run, nil
}

func (r *ingestionRunRepository) Update(ctx context.Context, run *models.IngestionRun) error {
	run.Progress.UpdatedAt = time.Now()

	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	query := `
		UPDATE ingestion_runs SET
			status = $2,
			phase = $3,
			records_processed = $4,
			total_estimate = $5,
			percentage = $6,
			current_batch = $7,
			vectorize_job_id = $8,
			stats = $9,
			error_message = $10,
			finished_at = $11,
			updated_at = $12
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		run.ID.String(), run.Status, run.Progress.Phase,
		run.Progress.RecordsProcessed, run.Progress.TotalEstimate,
		run.Progress.Percentage, run.Progress.CurrentBatch,
		jobIDString(run.VectorizeJobID), stats, run.ErrorMessage,
		run.FinishedAt, run.Progress.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingestion run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ingestion run %s does not exist", run.ID)
	}
	return nil
}

func jobIDString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
