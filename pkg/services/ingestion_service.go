package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
)

// maxErrorMessageLen bounds the human-readable failure message stored on a
// run.
const maxErrorMessageLen = 1000

// CompleteResult reports what the completion step did.
type CompleteResult struct {
	VectorizeJobID *uuid.UUID `json:"vectorization_job_id,omitempty"`
}

// IngestionService drives a multi-batch load of a source file into the
// record store. Long-running work is decomposed into short, independently
// retriable callbacks; no call here blocks for the length of a run.
type IngestionService interface {
	// StartRun creates a pending run for a dataset.
	StartRun(ctx context.Context, dataset, sourceURL string) (*models.IngestionRun, error)

	// CompleteUpload moves a pending run to running once the uploaded
	// object is confirmed. Returns apperrors.ErrInvalidState if the run is
	// not pending or has no confirmed source object.
	CompleteUpload(ctx context.Context, runID uuid.UUID) error

	// Truncate clears the dataset table and resets the run's progress to
	// the inserting phase at 0%.
	Truncate(ctx context.Context, runID uuid.UUID, dataset string) (int64, error)

	// InsertBatch appends one batch of records. Batch numbers are advisory
	// for progress display; delivery may be repeated or out of order and
	// the store tolerates it via upsert semantics.
	InsertBatch(ctx context.Context, runID uuid.UUID, dataset string, batchNumber, totalBatches int, records []*models.WatchlistRecord) (*repositories.BatchResult, error)

	// Complete marks the run completed and, unless skipped or nothing was
	// processed, enqueues a vectorization job for the dataset.
	Complete(ctx context.Context, runID uuid.UUID, dataset string, totalRecords, totalBatches int, errs []string, skipVectorization bool) (*CompleteResult, error)

	// Fail marks the run failed with a truncated message.
	Fail(ctx context.Context, runID uuid.UUID, message string) error

	// GetRun returns a run, or nil when it does not exist.
	GetRun(ctx context.Context, runID uuid.UUID) (*models.IngestionRun, error)
}

type ingestionService struct {
	runRepo         repositories.IngestionRunRepository
	recordRepo      repositories.RecordRepository
	jobs            VectorizeJobStarter
	maxStoredErrors int
	logger          *zap.Logger
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(
	runRepo repositories.IngestionRunRepository,
	recordRepo repositories.RecordRepository,
	jobs VectorizeJobStarter,
	maxStoredErrors int,
	logger *zap.Logger,
) IngestionService {
	if maxStoredErrors < 1 {
		maxStoredErrors = 100
	}
	return &ingestionService{
		runRepo:         runRepo,
		recordRepo:      recordRepo,
		jobs:            jobs,
		maxStoredErrors: maxStoredErrors,
		logger:          logger.Named("ingestion-service"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

func (s *ingestionService) StartRun(ctx context.Context, dataset, sourceURL string) (*models.IngestionRun, error) {
	run := &models.IngestionRun{
		Dataset:   dataset,
		SourceURL: sourceURL,
		Status:    models.RunStatusPending,
		Progress: models.RunProgress{
			Phase: models.PhaseInserting,
		},
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Info("ingestion run started",
		zap.String("run_id", run.ID.String()),
		zap.String("dataset", dataset))
	return run, nil
}

func (s *ingestionService) CompleteUpload(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s: %w", runID, apperrors.ErrNotFound)
	}
	if run.Status != models.RunStatusPending {
		return fmt.Errorf("run %s is %s, expected pending: %w", runID, run.Status, apperrors.ErrInvalidState)
	}
	if run.SourceURL == "" {
		return fmt.Errorf("run %s has no confirmed upload: %w", runID, apperrors.ErrInvalidState)
	}

	run.Status = models.RunStatusRunning
	if err := s.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

func (s *ingestionService) Truncate(ctx context.Context, runID uuid.UUID, dataset string) (int64, error) {
	deleted, err := s.recordRepo.TruncateDataset(ctx, dataset)
	if err != nil {
		return 0, fmt.Errorf("failed to truncate dataset %s: %w", dataset, err)
	}

	s.withRun(ctx, runID, "truncate", func(run *models.IngestionRun) {
		run.Progress.Phase = models.PhaseInserting
		run.Progress.RecordsProcessed = 0
		run.Progress.Percentage = 0
		run.Progress.CurrentBatch = 0
	})

	return deleted, nil
}

func (s *ingestionService) InsertBatch(ctx context.Context, runID uuid.UUID, dataset string, batchNumber, totalBatches int, records []*models.WatchlistRecord) (*repositories.BatchResult, error) {
	result, err := s.recordRepo.UpsertBatch(ctx, dataset, records)
	if err != nil {
		return nil, fmt.Errorf("failed to insert batch %d: %w", batchNumber, err)
	}

	s.withRun(ctx, runID, "batch", func(run *models.IngestionRun) {
		run.Progress.RecordsProcessed += result.Inserted
		run.Progress.CurrentBatch = batchNumber
		if totalBatches > 0 {
			run.Progress.TotalEstimate = totalBatches
			run.Progress.Percentage = clampPercentage(
				int(math.Round(float64(batchNumber) / float64(totalBatches) * 100)))
		} else {
			run.Progress.Percentage = 0
		}
	})

	return result, nil
}

func (s *ingestionService) Complete(ctx context.Context, runID uuid.UUID, dataset string, totalRecords, totalBatches int, errs []string, skipVectorization bool) (*CompleteResult, error) {
	if len(errs) > s.maxStoredErrors {
		errs = errs[:s.maxStoredErrors]
	}

	result := &CompleteResult{}

	if !skipVectorization && totalRecords > 0 {
		jobID, err := s.jobs.StartReindex(dataset)
		if err != nil {
			// Job-creation failure is a whole-run failure: the data is
			// loaded but will not be searchable by vector until reindexed.
			failErr := s.Fail(ctx, runID, fmt.Sprintf("failed to start vectorization: %v", err))
			if failErr != nil {
				s.logger.Error("failed to mark run failed after job error",
					zap.String("run_id", runID.String()),
					zap.Error(failErr))
			}
			return nil, fmt.Errorf("failed to start vectorization job: %w", err)
		}
		result.VectorizeJobID = &jobID
	}

	now := time.Now()
	s.withRun(ctx, runID, "complete", func(run *models.IngestionRun) {
		run.Status = models.RunStatusCompleted
		run.Progress.Percentage = 100
		run.Progress.RecordsProcessed = totalRecords
		run.Progress.TotalEstimate = totalRecords
		run.Stats = models.RunStats{
			TotalRecords: totalRecords,
			TotalBatches: totalBatches,
			Errors:       errs,
		}
		run.VectorizeJobID = result.VectorizeJobID
		run.FinishedAt = &now
		if result.VectorizeJobID != nil {
			run.Progress.Phase = models.PhaseVectorizing
		} else {
			run.Progress.Phase = models.PhaseCompleted
		}
	})

	s.logger.Info("ingestion run completed",
		zap.String("run_id", runID.String()),
		zap.String("dataset", dataset),
		zap.Int("total_records", totalRecords),
		zap.Int("errors", len(errs)),
		zap.Bool("vectorization_queued", result.VectorizeJobID != nil))

	return result, nil
}

func (s *ingestionService) Fail(ctx context.Context, runID uuid.UUID, message string) error {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}

	now := time.Now()
	s.withRun(ctx, runID, "failed", func(run *models.IngestionRun) {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = message
		run.FinishedAt = &now
	})
	return nil
}

func (s *ingestionService) GetRun(ctx context.Context, runID uuid.UUID) (*models.IngestionRun, error) {
	return s.runRepo.Get(ctx, runID)
}

// clampPercentage bounds a progress value to [0, 100]. Batch callbacks may
// arrive late or repeated, so batch_number can legitimately exceed
// total_batches.
func clampPercentage(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// withRun applies a mutation to a run if it exists and is not terminal.
// A missing run is logged and swallowed: callbacks may legitimately race
// with cleanup or reference a run created elsewhere, and progress
// bookkeeping must never fail the data-plane request.
func (s *ingestionService) withRun(ctx context.Context, runID uuid.UUID, callback string, mutate func(*models.IngestionRun)) {
	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		s.logger.Warn("failed to load run for callback",
			zap.String("run_id", runID.String()),
			zap.String("callback", callback),
			zap.Error(err))
		return
	}
	if run == nil {
		s.logger.Warn("callback for unknown run, ignoring",
			zap.String("run_id", runID.String()),
			zap.String("callback", callback))
		return
	}
	if run.Status.IsTerminal() && callback != "complete" && callback != "failed" {
		s.logger.Warn("callback for terminal run, ignoring",
			zap.String("run_id", runID.String()),
			zap.String("status", string(run.Status)),
			zap.String("callback", callback))
		return
	}

	mutate(run)
	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.Warn("failed to update run for callback",
			zap.String("run_id", runID.String()),
			zap.String("callback", callback),
			zap.Error(err))
	}
}
