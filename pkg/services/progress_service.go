package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
)

// ProgressService merges ingestion progress with vectorization job progress
// into the single percentage exposed to pollers.
//
// The 70/30 split: bulk insert is I/O-bound and cheap relative to
// embedding+indexing, so ingestion owns 0-70 and vectorization owns the
// rest. Without the split the UI sits at 100% while vectorization grinds on.
type ProgressService interface {
	GetProgress(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error)
}

type progressService struct {
	runRepo repositories.IngestionRunRepository
	jobs    VectorizeJobGetter
	logger  *zap.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(runRepo repositories.IngestionRunRepository, jobs VectorizeJobGetter, logger *zap.Logger) ProgressService {
	return &progressService{
		runRepo: runRepo,
		jobs:    jobs,
		logger:  logger.Named("progress-service"),
	}
}

var _ ProgressService = (*progressService)(nil)

func (s *progressService) GetProgress(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error) {
	run, err := s.runRepo.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrNotFound)
	}

	progress := run.Progress

	if run.VectorizeJobID == nil || s.jobs == nil {
		return &progress, nil
	}

	job, ok := s.jobs.GetJob(*run.VectorizeJobID)
	if !ok {
		// Job lookup failures fall back silently to ingestion-only
		// progress; polling must never fail the request.
		s.logger.Debug("vectorize job not found, using ingestion progress",
			zap.String("run_id", runID.String()),
			zap.String("job_id", run.VectorizeJobID.String()))
		return &progress, nil
	}

	switch job.Status {
	case VectorizeJobRunning:
		progress.Percentage = 70 + int(math.Round(float64(job.Percentage)*0.3))
		if job.Phase != "" {
			progress.Phase = job.Phase
		} else {
			progress.Phase = models.PhaseVectorizing
		}
	case VectorizeJobCompleted:
		progress.Percentage = 100
		progress.Phase = models.PhaseCompleted
	case VectorizeJobFailed:
		// Percentage unchanged: the ingest itself finished.
		progress.Phase = models.PhaseVectorizeFailed
	}

	return &progress, nil
}
