package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VectorizeJobStatus is the lifecycle state of a background reindex job.
type VectorizeJobStatus string

const (
	VectorizeJobRunning   VectorizeJobStatus = "RUNNING"
	VectorizeJobCompleted VectorizeJobStatus = "COMPLETED"
	VectorizeJobFailed    VectorizeJobStatus = "FAILED"
)

// VectorizeJobSnapshot is an immutable view of job state for pollers.
type VectorizeJobSnapshot struct {
	ID           uuid.UUID          `json:"id"`
	Dataset      string             `json:"dataset"`
	Status       VectorizeJobStatus `json:"status"`
	Phase        string             `json:"phase"`
	Percentage   int                `json:"percentage"`
	IndexedCount int                `json:"indexed_count"`
	Errors       []string           `json:"errors,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

// VectorizeJobStarter starts background reindex jobs.
type VectorizeJobStarter interface {
	StartReindex(dataset string) (uuid.UUID, error)
}

// VectorizeJobGetter resolves job status by id.
type VectorizeJobGetter interface {
	GetJob(id uuid.UUID) (*VectorizeJobSnapshot, bool)
}

type vectorizeJob struct {
	mu       sync.Mutex
	snapshot VectorizeJobSnapshot
}

func (j *vectorizeJob) update(fn func(*VectorizeJobSnapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.snapshot)
}

func (j *vectorizeJob) view() VectorizeJobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := j.snapshot
	snap.Errors = append([]string(nil), j.snapshot.Errors...)
	return snap
}

// VectorizeJobManager drives dataset reindex jobs in the background and
// tracks their progress in-memory, addressed by job id. Jobs are ephemeral:
// nothing survives a process restart, and a run whose job vanished simply
// falls back to ingestion-only progress.
type VectorizeJobManager struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*vectorizeJob
	vectorize VectorizeService
	batchSize int
	logger    *zap.Logger
}

// NewVectorizeJobManager creates a new job manager. batchSize is the
// records-per-IndexBatch step; values below 1 fall back to 500.
func NewVectorizeJobManager(vectorize VectorizeService, batchSize int, logger *zap.Logger) *VectorizeJobManager {
	if batchSize < 1 {
		batchSize = 500
	}
	return &VectorizeJobManager{
		jobs:      make(map[uuid.UUID]*vectorizeJob),
		vectorize: vectorize,
		batchSize: batchSize,
		logger:    logger.Named("vectorize-jobs"),
	}
}

var (
	_ VectorizeJobStarter = (*VectorizeJobManager)(nil)
	_ VectorizeJobGetter  = (*VectorizeJobManager)(nil)
)

// StartReindex launches a background reindex of the dataset: delete stale
// vectors, then index the record store page by page.
func (m *VectorizeJobManager) StartReindex(dataset string) (uuid.UUID, error) {
	if m.vectorize == nil {
		return uuid.Nil, fmt.Errorf("vectorize service not configured")
	}

	job := &vectorizeJob{
		snapshot: VectorizeJobSnapshot{
			ID:        uuid.New(),
			Dataset:   dataset,
			Status:    VectorizeJobRunning,
			Phase:     "vectorizing",
			StartedAt: time.Now(),
		},
	}

	m.mu.Lock()
	m.jobs[job.snapshot.ID] = job
	m.mu.Unlock()

	m.logger.Info("reindex job started",
		zap.String("job_id", job.snapshot.ID.String()),
		zap.String("dataset", dataset))

	go m.run(job)

	return job.snapshot.ID, nil
}

// GetJob returns a snapshot of the job's current state.
func (m *VectorizeJobManager) GetJob(id uuid.UUID) (*VectorizeJobSnapshot, bool) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	snap := job.view()
	return &snap, true
}

// run executes the reindex to completion. Batch operations are not
// cancellable mid-flight; a failed job is terminal and a new one is started
// instead.
func (m *VectorizeJobManager) run(job *vectorizeJob) {
	ctx := context.Background()
	snap := job.view()
	dataset := snap.Dataset

	fail := func(err error) {
		now := time.Now()
		job.update(func(s *VectorizeJobSnapshot) {
			s.Status = VectorizeJobFailed
			s.FinishedAt = &now
			s.Errors = append(s.Errors, err.Error())
		})
		m.logger.Error("reindex job failed",
			zap.String("job_id", snap.ID.String()),
			zap.String("dataset", dataset),
			zap.Error(err))
	}

	// Stale vectors must be gone before reindexing; a record has at most
	// one current vector.
	if _, err := m.vectorize.DeleteByDataset(ctx, dataset); err != nil {
		fail(fmt.Errorf("delete stale vectors: %w", err))
		return
	}

	total, err := m.vectorize.Count(ctx, dataset)
	if err != nil {
		fail(fmt.Errorf("count records: %w", err))
		return
	}

	indexed := 0
	for offset := 0; offset < total; offset += m.batchSize {
		result, err := m.vectorize.IndexBatch(ctx, dataset, offset, m.batchSize)
		if err != nil {
			fail(fmt.Errorf("index batch at offset %d: %w", offset, err))
			return
		}

		indexed += result.IndexedCount
		processed := offset + m.batchSize
		if processed > total {
			processed = total
		}
		percentage := int(math.Round(float64(processed) / float64(total) * 100))

		job.update(func(s *VectorizeJobSnapshot) {
			s.IndexedCount = indexed
			s.Percentage = percentage
			s.Errors = append(s.Errors, result.Errors...)
		})
	}

	now := time.Now()
	job.update(func(s *VectorizeJobSnapshot) {
		s.Status = VectorizeJobCompleted
		s.Phase = "completed"
		s.Percentage = 100
		s.FinishedAt = &now
	})
	m.logger.Info("reindex job completed",
		zap.String("job_id", snap.ID.String()),
		zap.String("dataset", dataset),
		zap.Int("indexed", indexed))
}
