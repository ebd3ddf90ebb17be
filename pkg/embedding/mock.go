package embedding

import "context"

// MockEmbedder is a configurable test double for the Embedder interface.
type MockEmbedder struct {
	EmbedBatchFunc func(ctx context.Context, inputs []string) ([][]float32, error)
	Size           int
}

// NewMockEmbedder returns a mock that emits deterministic unit vectors:
// input i gets a one-hot vector at position i%dims. Tests override
// EmbedBatchFunc for anything fancier.
func NewMockEmbedder(dims int) *MockEmbedder {
	m := &MockEmbedder{Size: 16}
	m.EmbedBatchFunc = func(ctx context.Context, inputs []string) ([][]float32, error) {
		out := make([][]float32, len(inputs))
		for i := range inputs {
			v := make([]float32, dims)
			v[hashString(inputs[i])%dims] = 1
			out[i] = v
		}
		return out, nil
	}
	return m
}

var _ Embedder = (*MockEmbedder)(nil)

// EmbedBatch delegates to EmbedBatchFunc.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	return m.EmbedBatchFunc(ctx, inputs)
}

// BatchSize returns the configured mock batch size.
func (m *MockEmbedder) BatchSize() int {
	if m.Size <= 0 {
		return 16
	}
	return m.Size
}

// hashString is a tiny FNV-style hash so identical inputs always embed to
// identical vectors.
func hashString(s string) int {
	h := 2166136261
	for i := 0; i < len(s); i++ {
		h ^= int(s[i])
		h *= 16777619
		h &= 0x7fffffff
	}
	return h
}
