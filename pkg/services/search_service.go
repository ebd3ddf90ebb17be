package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/embedding"
	"github.com/sanctio/screening-engine/pkg/matching"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
	"github.com/sanctio/screening-engine/pkg/vectorindex"
)

// SearchRequest is one screening query.
type SearchRequest struct {
	Query       string   `json:"q"`
	BirthDate   string   `json:"birthDate,omitempty"`
	Identifiers []string `json:"identifiers,omitempty"`
	Datasets    []string `json:"datasets,omitempty"`
	TopK        int      `json:"topK,omitempty"`
	Threshold   float64  `json:"threshold,omitempty"`
}

// SearchMatch is one ranked candidate with its score breakdown.
type SearchMatch struct {
	Dataset         string                  `json:"dataset"`
	RecordID        string                  `json:"record_id"`
	Record          *models.WatchlistRecord `json:"record"`
	VectorScore     float64                 `json:"vectorScore"`
	NameScore       float64                 `json:"nameScore"`
	MetaScore       float64                 `json:"metaScore"`
	FinalScore      float64                 `json:"finalScore"`
	IdentifierMatch bool                    `json:"identifierMatch"`
}

// SearchService is the hybrid entity-resolution engine: it merges exact
// identifier hits and vector neighbors, hydrates full records, and ranks by
// a weighted combination of vector, name and metadata agreement.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error)
}

// candidate tracks one record through the staged merge. The identifier
// stage wins on conflict: a vector hit for an already-seeded candidate
// enriches its vector score but never clears the identifier flag.
type candidate struct {
	key             models.IdentifierHit
	vectorScore     float64
	identifierMatch bool
	record          *models.WatchlistRecord
}

type searchService struct {
	identifierRepo repositories.IdentifierRepository
	recordRepo     repositories.RecordRepository
	index          vectorindex.Index
	embedder       embedding.Embedder
	weights        matching.Weights
	logger         *zap.Logger
}

// NewSearchService creates a new SearchService. index and embedder may be
// nil when unbound; Search then fails with apperrors.ErrServiceUnavailable.
func NewSearchService(
	identifierRepo repositories.IdentifierRepository,
	recordRepo repositories.RecordRepository,
	index vectorindex.Index,
	embedder embedding.Embedder,
	weights matching.Weights,
	logger *zap.Logger,
) SearchService {
	return &searchService{
		identifierRepo: identifierRepo,
		recordRepo:     recordRepo,
		index:          index,
		embedder:       embedder,
		weights:        weights,
		logger:         logger.Named("search-service"),
	}
}

var _ SearchService = (*searchService)(nil)

func (s *searchService) Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error) {
	if s.index == nil || s.embedder == nil {
		return nil, fmt.Errorf("embedding or vector index not configured: %w", apperrors.ErrServiceUnavailable)
	}
	if req.TopK <= 0 {
		req.TopK = 20
	}

	candidates := make(map[models.IdentifierHit]*candidate)

	// Stage 1: exact identifier lookup seeds candidates.
	if err := s.identifierStage(ctx, req, candidates); err != nil {
		return nil, err
	}

	// Stage 2: vector nearest neighbors.
	if err := s.vectorStage(ctx, req, candidates); err != nil {
		return nil, err
	}

	// Stage 3: hydrate full records.
	if err := s.hydrationStage(ctx, candidates); err != nil {
		return nil, err
	}

	// Stage 4: score, filter, order.
	return s.scoringStage(req, candidates), nil
}

func (s *searchService) identifierStage(ctx context.Context, req SearchRequest, candidates map[models.IdentifierHit]*candidate) error {
	if len(req.Identifiers) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(req.Identifiers))
	for _, raw := range req.Identifiers {
		n := matching.NormalizeIdentifier(raw)
		if n == "" {
			// Malformed identifiers are skipped individually, never fail
			// the whole query.
			s.logger.Debug("skipping malformed identifier", zap.String("raw", raw))
			continue
		}
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		return nil
	}

	hits, err := s.identifierRepo.Lookup(ctx, normalized)
	if err != nil {
		return fmt.Errorf("identifier lookup: %w", err)
	}

	for _, hit := range hits {
		candidates[hit] = &candidate{key: hit, identifierMatch: true}
	}
	return nil
}

func (s *searchService) vectorStage(ctx context.Context, req SearchRequest, candidates map[models.IdentifierHit]*candidate) error {
	vectors, err := s.embedder.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embedding returned no vector for query")
	}

	var filter map[string]any
	switch len(req.Datasets) {
	case 0:
		// No dataset restriction.
	case 1:
		filter = map[string]any{"dataset": req.Datasets[0]}
	default:
		filter = map[string]any{"dataset": map[string]any{"$in": req.Datasets}}
	}

	matches, err := s.index.Query(ctx, vectors[0], req.TopK, filter)
	if err != nil {
		return fmt.Errorf("vector query: %w", err)
	}

	for _, match := range matches {
		dataset, recordID, ok := vectorindex.ParseVectorID(match.ID)
		if !ok {
			s.logger.Warn("skipping malformed vector id", zap.String("id", match.ID))
			continue
		}
		key := models.IdentifierHit{Dataset: dataset, RecordID: recordID}
		if existing, ok := candidates[key]; ok {
			existing.vectorScore = match.Score
			continue
		}
		candidates[key] = &candidate{key: key, vectorScore: match.Score}
	}
	return nil
}

func (s *searchService) hydrationStage(ctx context.Context, candidates map[models.IdentifierHit]*candidate) error {
	missing := make([]models.IdentifierHit, 0, len(candidates))
	for key, cand := range candidates {
		if cand.record == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	records, err := s.recordRepo.GetByKeys(ctx, missing)
	if err != nil {
		return fmt.Errorf("hydrate candidates: %w", err)
	}
	for _, rec := range records {
		key := models.IdentifierHit{Dataset: rec.Dataset, RecordID: rec.ID}
		if cand, ok := candidates[key]; ok {
			cand.record = rec
		}
	}
	return nil
}

func (s *searchService) scoringStage(req SearchRequest, candidates map[models.IdentifierHit]*candidate) []SearchMatch {
	matches := make([]SearchMatch, 0, len(candidates))
	for _, cand := range candidates {
		if cand.record == nil {
			// Stale vector or index drift; nothing to score against.
			s.logger.Debug("dropping unhydrated candidate",
				zap.String("dataset", cand.key.Dataset),
				zap.String("record_id", cand.key.RecordID))
			continue
		}

		nameScore := matching.BestNameScore(req.Query, cand.record.PrimaryName, cand.record.Aliases)
		metaScore := matching.MetaScore(req.BirthDate, cand.record.BirthDate)
		finalScore := matching.HybridScore(s.weights, cand.vectorScore, nameScore, metaScore)

		// Identifier matches are an independent signal: they survive the
		// threshold even at zero blended score.
		if finalScore < req.Threshold && !cand.identifierMatch {
			continue
		}

		matches = append(matches, SearchMatch{
			Dataset:         cand.key.Dataset,
			RecordID:        cand.key.RecordID,
			Record:          cand.record,
			VectorScore:     cand.vectorScore,
			NameScore:       nameScore,
			MetaScore:       metaScore,
			FinalScore:      finalScore,
			IdentifierMatch: cand.identifierMatch,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FinalScore != matches[j].FinalScore {
			return matches[i].FinalScore > matches[j].FinalScore
		}
		if matches[i].IdentifierMatch != matches[j].IdentifierMatch {
			return matches[i].IdentifierMatch
		}
		if matches[i].Dataset != matches[j].Dataset {
			return matches[i].Dataset < matches[j].Dataset
		}
		return matches[i].RecordID < matches[j].RecordID
	})

	return matches
}
