package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryBackend struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string]string)}
}

func (m *memoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return "", ErrMiss
	}
	return val, nil
}

func (m *memoryBackend) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memoryBackend) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func TestCachePutGet(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, "records", time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := c.Get(ctx, "list", "/records?dataset=ofac")
	assert.False(t, ok)

	c.Put(ctx, "list", "/records?dataset=ofac", map[string]int{"total": 3})

	raw, ok := c.Get(ctx, "list", "/records?dataset=ofac")
	require.True(t, ok)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, 3, payload["total"])
}

func TestCacheInvalidateOrphansOldEntries(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, "records", time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Put(ctx, "list", "a", "old")
	_, ok := c.Get(ctx, "list", "a")
	require.True(t, ok)

	c.Invalidate(ctx)

	_, ok = c.Get(ctx, "list", "a")
	assert.False(t, ok, "entry written under old version must not be visible")

	c.Put(ctx, "list", "a", "new")
	raw, ok := c.Get(ctx, "list", "a")
	require.True(t, ok)
	assert.Equal(t, `"new"`, string(raw))
}

func TestCacheKeyIsolatesOperations(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, "records", time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Put(ctx, "list", "a", 1)
	_, ok := c.Get(ctx, "count", "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "list", "b")
	assert.False(t, ok)
}

func TestCacheMalformedPayloadIsMiss(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, "records", time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Put(ctx, "list", "a", 1)

	// Corrupt every data key in place.
	backend.mu.Lock()
	for k := range backend.data {
		if k != "records:cache:version" {
			backend.data[k] = "{not json"
		}
	}
	backend.mu.Unlock()

	_, ok := c.Get(ctx, "list", "a")
	assert.False(t, ok)
}

func TestCacheBackendErrorsAreMisses(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, "records", time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Put(ctx, "list", "a", 1)

	backend.mu.Lock()
	backend.getErr = errors.New("connection refused")
	backend.mu.Unlock()

	_, ok := c.Get(ctx, "list", "a")
	assert.False(t, ok)

	// Writes with a failing backend must not panic or error out.
	backend.mu.Lock()
	backend.setErr = errors.New("connection refused")
	backend.mu.Unlock()
	c.Put(ctx, "list", "b", 2)
	c.Invalidate(ctx)
}

func TestCacheNilBackend(t *testing.T) {
	c := New(nil, "records", time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Put(ctx, "list", "a", 1)
	_, ok := c.Get(ctx, "list", "a")
	assert.False(t, ok)
	c.Invalidate(ctx)
}

func TestCanonicalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"sorts keys and values", "/tasks?b=2&a=1&a=0", "/tasks?a=0&a=1&b=2"},
		{"no query", "/tasks", "/tasks"},
		{"empty query", "/tasks?", "/tasks"},
		{"single param", "/records?dataset=ofac", "/records?dataset=ofac"},
		{"repeated values sorted", "/r?x=b&x=a", "/r?x=a&x=b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalizeQuery(tt.input))
		})
	}
}

func TestCanonicalizeQueryStable(t *testing.T) {
	a := CanonicalizeQuery("/records?limit=50&dataset=ofac&offset=0")
	b := CanonicalizeQuery("/records?offset=0&dataset=ofac&limit=50")
	assert.Equal(t, a, b)
}
