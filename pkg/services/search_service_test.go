package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/config"
	"github.com/sanctio/screening-engine/pkg/embedding"
	"github.com/sanctio/screening-engine/pkg/matching"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/vectorindex"
)

type searchFixture struct {
	search  SearchService
	records *fakeRecordRepo
	idents  *fakeIdentifierRepo
	index   *vectorindex.MemoryIndex
}

// newSearchFixture indexes the seeded records through the real vectorize
// service so search runs against the same vectors production would build.
func newSearchFixture(t *testing.T, records *fakeRecordRepo, datasets ...string) *searchFixture {
	t.Helper()
	index := vectorindex.NewMemoryIndex()
	embedder := embedding.NewMockEmbedder(64)
	cfg := &config.VectorIndexConfig{}
	vectorize := NewVectorizeService(records, index, embedder, cfg, zap.NewNop())

	for _, dataset := range datasets {
		_, err := vectorize.IndexBatch(context.Background(), dataset, 0, 1000)
		require.NoError(t, err)
	}

	idents := &fakeIdentifierRepo{hits: make(map[string][]models.IdentifierHit)}
	search := NewSearchService(idents, records, index, embedder, matching.DefaultWeights(), zap.NewNop())
	return &searchFixture{search: search, records: records, idents: idents, index: index}
}

func TestSearchExactNameRanksFirst(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac",
		&models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad"},
		&models.WatchlistRecord{ID: "2", PrimaryName: "Leyla Osmanova"},
		&models.WatchlistRecord{ID: "3", PrimaryName: "Orion Shipping Ltd"})
	f := newSearchFixture(t, records, "ofac")

	matches, err := f.search.Search(context.Background(), SearchRequest{
		Query:     "Leyla Osmanova",
		TopK:      5,
		Threshold: 0.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	top := matches[0]
	assert.Equal(t, "2", top.RecordID)
	assert.InDelta(t, 1.0, top.VectorScore, 0.001)
	assert.InDelta(t, 1.0, top.NameScore, 0.001)
	assert.False(t, top.IdentifierMatch)
	require.NotNil(t, top.Record)
	assert.Equal(t, "Leyla Osmanova", top.Record.PrimaryName)
}

func TestSearchIdentifierMatchSurvivesThreshold(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac",
		&models.WatchlistRecord{ID: "77", PrimaryName: "Completely Different Name"})
	f := newSearchFixture(t, records, "ofac")
	f.idents.hits["P1234567"] = []models.IdentifierHit{{Dataset: "ofac", RecordID: "77"}}

	matches, err := f.search.Search(context.Background(), SearchRequest{
		Query:       "unrelated query text",
		Identifiers: []string{"p-123 4567"},
		TopK:        5,
		Threshold:   0.99,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	match := matches[0]
	assert.True(t, match.IdentifierMatch)
	assert.Equal(t, "77", match.RecordID)
	// The exact hit is an independent signal; the blended score stays low.
	assert.Less(t, match.FinalScore, 0.99)
}

func TestSearchMalformedIdentifiersSkipped(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac", &models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad"})
	f := newSearchFixture(t, records, "ofac")

	_, err := f.search.Search(context.Background(), SearchRequest{
		Query:       "Viktor Haddad",
		Identifiers: []string{"---", "   "},
		TopK:        5,
	})
	assert.NoError(t, err, "malformed identifiers must not fail the query")
}

func TestSearchThresholdFiltersWeakMatches(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac",
		&models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad"},
		&models.WatchlistRecord{ID: "2", PrimaryName: "Leyla Osmanova"})
	f := newSearchFixture(t, records, "ofac")

	matches, err := f.search.Search(context.Background(), SearchRequest{
		Query:     "Viktor Haddad",
		TopK:      5,
		Threshold: 0.8,
	})
	require.NoError(t, err)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.FinalScore, 0.8)
	}
}

func TestSearchDatasetFilter(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac", &models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad"})
	records.seed("unsc", &models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad"})
	f := newSearchFixture(t, records, "ofac", "unsc")

	matches, err := f.search.Search(context.Background(), SearchRequest{
		Query:     "Viktor Haddad",
		Datasets:  []string{"unsc"},
		TopK:      5,
		Threshold: 0.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Equal(t, "unsc", m.Dataset)
	}
}

func TestSearchBirthDateImprovesScore(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac",
		&models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad", BirthDate: "1970-04-12"})
	f := newSearchFixture(t, records, "ofac")
	ctx := context.Background()

	without, err := f.search.Search(ctx, SearchRequest{Query: "Viktor Haddad", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, without)

	with, err := f.search.Search(ctx, SearchRequest{Query: "Viktor Haddad", BirthDate: "1970-04-12", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, with)

	assert.Greater(t, with[0].FinalScore, without[0].FinalScore)
}

func TestSearchVectorGoneAfterDelete(t *testing.T) {
	records := newFakeRecordRepo()
	records.seed("ofac", &models.WatchlistRecord{ID: "1", PrimaryName: "Viktor Haddad"})
	f := newSearchFixture(t, records, "ofac")
	ctx := context.Background()

	embedder := embedding.NewMockEmbedder(64)
	cfg := &config.VectorIndexConfig{}
	vectorize := NewVectorizeService(records, f.index, embedder, cfg, zap.NewNop())
	_, err := vectorize.DeleteByDataset(ctx, "ofac")
	require.NoError(t, err)

	matches, err := f.search.Search(ctx, SearchRequest{Query: "Viktor Haddad", TopK: 5, Threshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, matches, "no vector-originated matches after delete")
}

func TestSearchUnconfigured(t *testing.T) {
	idents := &fakeIdentifierRepo{}
	records := newFakeRecordRepo()
	search := NewSearchService(idents, records, nil, nil, matching.DefaultWeights(), zap.NewNop())

	_, err := search.Search(context.Background(), SearchRequest{Query: "anyone"})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
}
