package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sanctio/screening-engine/pkg/broadcast"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
	"github.com/sanctio/screening-engine/pkg/services"
)

type mockIngestionService struct {
	services.IngestionService

	startRunFunc       func(ctx context.Context, dataset, sourceURL string) (*models.IngestionRun, error)
	completeUploadFunc func(ctx context.Context, runID uuid.UUID) error
	truncateFunc       func(ctx context.Context, runID uuid.UUID, dataset string) (int64, error)
	insertBatchFunc    func(ctx context.Context, runID uuid.UUID, dataset string, batchNumber, totalBatches int, records []*models.WatchlistRecord) (*repositories.BatchResult, error)
	completeFunc       func(ctx context.Context, runID uuid.UUID, dataset string, totalRecords, totalBatches int, errs []string, skip bool) (*services.CompleteResult, error)
	failFunc           func(ctx context.Context, runID uuid.UUID, message string) error
}

func (m *mockIngestionService) StartRun(ctx context.Context, dataset, sourceURL string) (*models.IngestionRun, error) {
	return m.startRunFunc(ctx, dataset, sourceURL)
}

func (m *mockIngestionService) CompleteUpload(ctx context.Context, runID uuid.UUID) error {
	return m.completeUploadFunc(ctx, runID)
}

func (m *mockIngestionService) Truncate(ctx context.Context, runID uuid.UUID, dataset string) (int64, error) {
	return m.truncateFunc(ctx, runID, dataset)
}

func (m *mockIngestionService) InsertBatch(ctx context.Context, runID uuid.UUID, dataset string, batchNumber, totalBatches int, records []*models.WatchlistRecord) (*repositories.BatchResult, error) {
	return m.insertBatchFunc(ctx, runID, dataset, batchNumber, totalBatches, records)
}

func (m *mockIngestionService) Complete(ctx context.Context, runID uuid.UUID, dataset string, totalRecords, totalBatches int, errs []string, skip bool) (*services.CompleteResult, error) {
	return m.completeFunc(ctx, runID, dataset, totalRecords, totalBatches, errs, skip)
}

func (m *mockIngestionService) Fail(ctx context.Context, runID uuid.UUID, message string) error {
	return m.failFunc(ctx, runID, message)
}

type mockSearchService struct {
	searchFunc func(ctx context.Context, req services.SearchRequest) ([]services.SearchMatch, error)
}

func (m *mockSearchService) Search(ctx context.Context, req services.SearchRequest) ([]services.SearchMatch, error) {
	return m.searchFunc(ctx, req)
}

type mockProgressService struct {
	getProgressFunc func(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error)
}

func (m *mockProgressService) GetProgress(ctx context.Context, runID uuid.UUID) (*models.RunProgress, error) {
	return m.getProgressFunc(ctx, runID)
}

type mockVectorizeService struct {
	countFunc      func(ctx context.Context, dataset string) (int, error)
	deleteFunc     func(ctx context.Context, dataset string) (int, error)
	indexBatchFunc func(ctx context.Context, dataset string, offset, limit int) (*services.IndexBatchResult, error)
}

func (m *mockVectorizeService) Count(ctx context.Context, dataset string) (int, error) {
	return m.countFunc(ctx, dataset)
}

func (m *mockVectorizeService) DeleteByDataset(ctx context.Context, dataset string) (int, error) {
	return m.deleteFunc(ctx, dataset)
}

func (m *mockVectorizeService) IndexBatch(ctx context.Context, dataset string, offset, limit int) (*services.IndexBatchResult, error) {
	return m.indexBatchFunc(ctx, dataset, offset, limit)
}

type mockRecordRepo struct {
	repositories.RecordRepository

	mu        sync.Mutex
	listCalls int
	listFunc  func(ctx context.Context, dataset string, offset, limit int) ([]*models.WatchlistRecord, error)
	countFunc func(ctx context.Context, dataset string) (int, error)
}

func (m *mockRecordRepo) ListPage(ctx context.Context, dataset string, offset, limit int) ([]*models.WatchlistRecord, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	return m.listFunc(ctx, dataset, offset, limit)
}

func (m *mockRecordRepo) CountByDataset(ctx context.Context, dataset string) (int, error) {
	return m.countFunc(ctx, dataset)
}

type mockInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (m *mockInvalidator) Invalidate(context.Context) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

type mockPublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
	ids    []string
}

func (m *mockPublisher) Broadcast(searchID string, event broadcast.Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, searchID)
	m.events = append(m.events, event)
	return 1
}
