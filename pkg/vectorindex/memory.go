package vectorindex

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryIndex is an in-memory Index used in tests and local development.
// Similarity is cosine, matching what the hosted service reports.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string]Vector

	// Optional fault injection for failure-isolation tests.
	UpsertErr error
	DeleteErr error
	QueryErr  error
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string]Vector)}
}

var _ Index = (*MemoryIndex)(nil)

// Upsert inserts or replaces vectors.
func (m *MemoryIndex) Upsert(ctx context.Context, vectors []Vector) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vectors {
		m.vectors[v.ID] = v
	}
	return nil
}

// Query returns the topK nearest neighbors by cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Match, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.vectors))
	for _, v := range m.vectors {
		if !matchesFilter(v.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       v.ID,
			Score:    cosine(vector, v.Values),
			Metadata: v.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByIDs removes vectors by id.
func (m *MemoryIndex) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.vectors[id]; ok {
			delete(m.vectors, id)
			deleted++
		}
	}
	return deleted, nil
}

// ListIDs pages through ids with the given prefix in sorted order. The
// cursor is the numeric offset into the sorted id list.
func (m *MemoryIndex) ListIDs(ctx context.Context, prefix string, limit int, cursor string) ([]string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]string, 0, len(m.vectors))
	for id := range m.vectors {
		if strings.HasPrefix(id, prefix) {
			all = append(all, id)
		}
	}
	sort.Strings(all)

	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	if offset >= len(all) {
		return nil, "", nil
	}

	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	next := ""
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return all[offset:end], next, nil
}

// Len returns the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// matchesFilter supports equality and {"$in": [...]} per metadata field.
func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case map[string]any:
			in, ok := w["$in"].([]string)
			if !ok {
				return false
			}
			found := false
			for _, candidate := range in {
				if got == candidate {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
