package vectorindex

import "context"

// Index is the operations the engine needs from a vector search service.
// Implemented by the HTTP client and by an in-memory fake for tests.
type Index interface {
	// Upsert inserts or replaces vectors. A record has at most one current
	// vector, keyed by VectorID.
	Upsert(ctx context.Context, vectors []Vector) error

	// Query returns the topK nearest neighbors of vector, optionally
	// restricted by a metadata filter.
	Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Match, error)

	// DeleteByIDs removes vectors by id and returns how many were deleted.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// ListIDs pages through vector ids with the given prefix. An empty
	// returned cursor means the listing is exhausted.
	ListIDs(ctx context.Context, prefix string, limit int, cursor string) (ids []string, nextCursor string, err error)
}
