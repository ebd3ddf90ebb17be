package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/database"
	"github.com/sanctio/screening-engine/pkg/models"
)

// IdentifierRepository resolves normalized identifiers to records via the
// exact-match index. Rows are derived data, written by RecordRepository as
// part of record upserts.
type IdentifierRepository interface {
	// Lookup returns every record keyed by any of the given normalized
	// identifiers. Unknown identifiers simply produce no hits.
	Lookup(ctx context.Context, normalized []string) ([]models.IdentifierHit, error)
}

type identifierRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewIdentifierRepository creates a new IdentifierRepository.
func NewIdentifierRepository(db *database.DB, logger *zap.Logger) IdentifierRepository {
	return &identifierRepository{db: db, logger: logger.Named("identifier-repo")}
}

var _ IdentifierRepository = (*identifierRepository)(nil)

func (r *identifierRepository) Lookup(ctx context.Context, normalized []string) ([]models.IdentifierHit, error) {
	if len(normalized) == 0 {
		return []models.IdentifierHit{}, nil
	}

	query := `
		SELECT DISTINCT dataset, record_id
		FROM identifier_index
		WHERE identifier_normalized = ANY($1)`

	rows, err := r.db.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identifiers: %w", err)
	}
	defer rows.Close()

	hits := make([]models.IdentifierHit, 0)
	for rows.Next() {
		var hit models.IdentifierHit
		if err := rows.Scan(&hit.Dataset, &hit.RecordID); err != nil {
			return nil, fmt.Errorf("failed to scan identifier hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifier hits: %w", err)
	}

	return hits, nil
}
