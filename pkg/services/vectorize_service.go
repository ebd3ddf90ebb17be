package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/config"
	"github.com/sanctio/screening-engine/pkg/embedding"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
	"github.com/sanctio/screening-engine/pkg/vectorindex"
)

// IndexBatchResult reports the outcome of one vectorization batch. Errors
// are per-sub-batch and advisory: the caller decides whether failed offsets
// are worth re-driving.
type IndexBatchResult struct {
	IndexedCount int      `json:"indexed_count"`
	Errors       []string `json:"errors,omitempty"`
}

// VectorizeService reads the record store, composes embedding text and
// filter metadata per record, and keeps the vector index in step.
type VectorizeService interface {
	// Count returns the number of records a full reindex of the dataset
	// would cover.
	Count(ctx context.Context, dataset string) (int, error)

	// DeleteByDataset removes all vectors of a dataset in fixed-size delete
	// batches. Cleanup is best-effort: a failed batch is logged and the
	// remaining batches still run.
	DeleteByDataset(ctx context.Context, dataset string) (int, error)

	// IndexBatch embeds and upserts one page of records. Embedding or
	// upsert failures are isolated per sub-batch and accumulated in the
	// result rather than failing the whole request.
	IndexBatch(ctx context.Context, dataset string, offset, limit int) (*IndexBatchResult, error)
}

type vectorizeService struct {
	recordRepo repositories.RecordRepository
	index      vectorindex.Index
	embedder   embedding.Embedder
	upsertSize int
	deleteSize int
	logger     *zap.Logger
}

// NewVectorizeService creates a new VectorizeService. index and embedder may
// be nil when the corresponding binding is not configured; operations then
// fail with apperrors.ErrServiceUnavailable.
func NewVectorizeService(
	recordRepo repositories.RecordRepository,
	index vectorindex.Index,
	embedder embedding.Embedder,
	cfg *config.VectorIndexConfig,
	logger *zap.Logger,
) VectorizeService {
	upsertSize := cfg.UpsertBatchSize
	if upsertSize < 1 {
		upsertSize = 100
	}
	deleteSize := cfg.DeleteBatchSize
	if deleteSize < 1 {
		deleteSize = 200
	}
	return &vectorizeService{
		recordRepo: recordRepo,
		index:      index,
		embedder:   embedder,
		upsertSize: upsertSize,
		deleteSize: deleteSize,
		logger:     logger.Named("vectorize-service"),
	}
}

var _ VectorizeService = (*vectorizeService)(nil)

func (s *vectorizeService) Count(ctx context.Context, dataset string) (int, error) {
	return s.recordRepo.CountByDataset(ctx, dataset)
}

func (s *vectorizeService) DeleteByDataset(ctx context.Context, dataset string) (int, error) {
	if s.index == nil {
		return 0, fmt.Errorf("vector index not configured: %w", apperrors.ErrServiceUnavailable)
	}

	deleted := 0
	cursor := ""
	prefix := dataset + ":"
	for {
		ids, next, err := s.index.ListIDs(ctx, prefix, s.deleteSize, cursor)
		if err != nil {
			return deleted, fmt.Errorf("failed to list vectors for dataset %s: %w", dataset, err)
		}
		if len(ids) == 0 {
			break
		}

		n, err := s.index.DeleteByIDs(ctx, ids)
		if err != nil || n == 0 {
			if err != nil {
				// Best-effort cleanup: keep going with the next page.
				s.logger.Warn("vector delete batch failed",
					zap.String("dataset", dataset),
					zap.Int("batch_size", len(ids)),
					zap.Error(err))
			}
			if next == "" {
				break
			}
			cursor = next
			continue
		}

		deleted += n
		// Deleted ids shift the page window; restart from the head.
		cursor = ""
	}

	s.logger.Info("deleted vectors for dataset",
		zap.String("dataset", dataset),
		zap.Int("deleted", deleted))
	return deleted, nil
}

func (s *vectorizeService) IndexBatch(ctx context.Context, dataset string, offset, limit int) (*IndexBatchResult, error) {
	if s.index == nil || s.embedder == nil {
		return nil, fmt.Errorf("embedding or vector index not configured: %w", apperrors.ErrServiceUnavailable)
	}

	records, err := s.recordRepo.ListPage(ctx, dataset, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records for indexing: %w", err)
	}

	result := &IndexBatchResult{}
	embedSize := s.embedder.BatchSize()

	for start := 0; start < len(records); start += embedSize {
		end := start + embedSize
		if end > len(records) {
			end = len(records)
		}
		sub := records[start:end]

		texts := make([]string, len(sub))
		for i, rec := range sub {
			texts[i] = EmbeddingText(rec)
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Skip this sub-batch, keep the rest of the page alive.
			result.Errors = append(result.Errors,
				fmt.Sprintf("embed records %d-%d: %v", offset+start, offset+end-1, err))
			s.logger.Warn("embedding sub-batch failed",
				zap.String("dataset", dataset),
				zap.Int("offset", offset+start),
				zap.Int("count", len(sub)),
				zap.Error(err))
			continue
		}

		entries := make([]vectorindex.Vector, len(sub))
		for i, rec := range sub {
			entries[i] = vectorindex.Vector{
				ID:       vectorindex.VectorID(dataset, rec.ID),
				Values:   vectors[i],
				Metadata: vectorMetadata(dataset, rec),
			}
		}

		result.IndexedCount += s.upsertIsolated(ctx, dataset, entries, result)
	}

	return result, nil
}

// upsertIsolated pushes vectors in upsert-sized chunks, recording failures
// per chunk. Returns the number of vectors successfully upserted.
func (s *vectorizeService) upsertIsolated(ctx context.Context, dataset string, entries []vectorindex.Vector, result *IndexBatchResult) int {
	upserted := 0
	for start := 0; start < len(entries); start += s.upsertSize {
		end := start + s.upsertSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		if err := s.index.Upsert(ctx, chunk); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("upsert %d vectors (%s..%s): %v",
					len(chunk), chunk[0].ID, chunk[len(chunk)-1].ID, err))
			s.logger.Warn("vector upsert chunk failed",
				zap.String("dataset", dataset),
				zap.Int("count", len(chunk)),
				zap.Error(err))
			continue
		}
		upserted += len(chunk)
	}
	return upserted
}

// EmbeddingText composes the text embedded for a record: primary name,
// aliases and identifier numbers. Free-text addresses and remarks are
// deliberately excluded; they drown the name signal in noise.
func EmbeddingText(rec *models.WatchlistRecord) string {
	parts := make([]string, 0, 1+len(rec.Aliases)+len(rec.Identifiers))
	parts = append(parts, rec.PrimaryName)
	parts = append(parts, rec.Aliases...)
	for _, ident := range rec.Identifiers {
		if ident.Number != "" {
			parts = append(parts, ident.Number)
		}
	}
	return strings.Join(parts, " | ")
}

// vectorMetadata builds the filterable metadata bag stored with a vector.
func vectorMetadata(dataset string, rec *models.WatchlistRecord) map[string]any {
	metadata := map[string]any{
		"dataset":    dataset,
		"record_id":  rec.ID,
		"party_type": string(rec.PartyType),
	}
	if rec.BirthDate != "" {
		metadata["birth_date"] = rec.BirthDate
	}
	if rec.SourceList != "" {
		metadata["source_list"] = rec.SourceList
	}
	return metadata
}
