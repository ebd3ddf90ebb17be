package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
)

// fakeRecordRepo is an in-memory RecordRepository keyed by dataset.
type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[string]map[string]*models.WatchlistRecord

	upsertErr   error
	listErr     error
	countErr    error
	truncateErr error
	getErr      error

	upsertCalls int
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]map[string]*models.WatchlistRecord)}
}

var _ repositories.RecordRepository = (*fakeRecordRepo)(nil)

func (f *fakeRecordRepo) seed(dataset string, recs ...*models.WatchlistRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[dataset] == nil {
		f.records[dataset] = make(map[string]*models.WatchlistRecord)
	}
	for _, rec := range recs {
		rec.Dataset = dataset
		f.records[dataset][rec.ID] = rec
	}
}

func (f *fakeRecordRepo) UpsertBatch(_ context.Context, dataset string, recs []*models.WatchlistRecord) (*repositories.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	if f.records[dataset] == nil {
		f.records[dataset] = make(map[string]*models.WatchlistRecord)
	}
	for _, rec := range recs {
		rec.Dataset = dataset
		f.records[dataset][rec.ID] = rec
	}
	return &repositories.BatchResult{Inserted: len(recs)}, nil
}

func (f *fakeRecordRepo) GetByKeys(_ context.Context, keys []models.IdentifierHit) ([]*models.WatchlistRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []*models.WatchlistRecord
	for _, key := range keys {
		if rec, ok := f.records[key.Dataset][key.RecordID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ListPage(_ context.Context, dataset string, offset, limit int) ([]*models.WatchlistRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.records[dataset]))
	for id := range f.records[dataset] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if offset >= len(ids) {
		return nil, nil
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*models.WatchlistRecord, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, f.records[dataset][id])
	}
	return out, nil
}

func (f *fakeRecordRepo) CountByDataset(_ context.Context, dataset string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.records[dataset]), nil
}

func (f *fakeRecordRepo) TruncateDataset(_ context.Context, dataset string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.truncateErr != nil {
		return 0, f.truncateErr
	}
	n := int64(len(f.records[dataset]))
	delete(f.records, dataset)
	return n, nil
}

// fakeRunRepo is an in-memory IngestionRunRepository.
type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.IngestionRun

	createErr error
	getErr    error
	updateErr error
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[uuid.UUID]*models.IngestionRun)}
}

var _ repositories.IngestionRunRepository = (*fakeRunRepo)(nil)

func (f *fakeRunRepo) Create(_ context.Context, run *models.IngestionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	stored := *run
	f.runs[run.ID] = &stored
	return nil
}

func (f *fakeRunRepo) Get(_ context.Context, id uuid.UUID) (*models.IngestionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	view := *run
	return &view, nil
}

func (f *fakeRunRepo) Update(_ context.Context, run *models.IngestionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	stored := *run
	f.runs[run.ID] = &stored
	return nil
}

// fakeIdentifierRepo serves canned identifier hits.
type fakeIdentifierRepo struct {
	hits      map[string][]models.IdentifierHit
	lookupErr error
}

var _ repositories.IdentifierRepository = (*fakeIdentifierRepo)(nil)

func (f *fakeIdentifierRepo) Lookup(_ context.Context, normalized []string) ([]models.IdentifierHit, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	seen := make(map[models.IdentifierHit]bool)
	var out []models.IdentifierHit
	for _, n := range normalized {
		for _, hit := range f.hits[n] {
			if !seen[hit] {
				seen[hit] = true
				out = append(out, hit)
			}
		}
	}
	return out, nil
}

// fakeJobStarter records reindex requests.
type fakeJobStarter struct {
	mu       sync.Mutex
	jobID    uuid.UUID
	startErr error
	started  []string
}

var _ VectorizeJobStarter = (*fakeJobStarter)(nil)

func (f *fakeJobStarter) StartReindex(dataset string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	f.started = append(f.started, dataset)
	if f.jobID == uuid.Nil {
		f.jobID = uuid.New()
	}
	return f.jobID, nil
}

// fakeJobGetter serves canned job snapshots.
type fakeJobGetter struct {
	jobs map[uuid.UUID]*VectorizeJobSnapshot
}

var _ VectorizeJobGetter = (*fakeJobGetter)(nil)

func (f *fakeJobGetter) GetJob(id uuid.UUID) (*VectorizeJobSnapshot, bool) {
	job, ok := f.jobs[id]
	return job, ok
}

// fakeVectorizeService drives the job manager without real stores.
type fakeVectorizeService struct {
	CountFunc     func(ctx context.Context, dataset string) (int, error)
	DeleteFunc    func(ctx context.Context, dataset string) (int, error)
	IndexFunc     func(ctx context.Context, dataset string, offset, limit int) (*IndexBatchResult, error)
	mu            sync.Mutex
	indexedPages  []int
	deletedCalled bool
}

var _ VectorizeService = (*fakeVectorizeService)(nil)

func (f *fakeVectorizeService) Count(ctx context.Context, dataset string) (int, error) {
	if f.CountFunc != nil {
		return f.CountFunc(ctx, dataset)
	}
	return 0, nil
}

func (f *fakeVectorizeService) DeleteByDataset(ctx context.Context, dataset string) (int, error) {
	f.mu.Lock()
	f.deletedCalled = true
	f.mu.Unlock()
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, dataset)
	}
	return 0, nil
}

func (f *fakeVectorizeService) IndexBatch(ctx context.Context, dataset string, offset, limit int) (*IndexBatchResult, error) {
	f.mu.Lock()
	f.indexedPages = append(f.indexedPages, offset)
	f.mu.Unlock()
	if f.IndexFunc != nil {
		return f.IndexFunc(ctx, dataset, offset, limit)
	}
	return &IndexBatchResult{}, nil
}
