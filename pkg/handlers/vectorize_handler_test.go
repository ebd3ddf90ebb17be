package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/services"
)

func vectorizeMux(svc *mockVectorizeService) *http.ServeMux {
	mux := http.NewServeMux()
	NewVectorizeHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestVectorizeCountEndpoint(t *testing.T) {
	svc := &mockVectorizeService{
		countFunc: func(_ context.Context, dataset string) (int, error) {
			assert.Equal(t, "ofac", dataset)
			return 1234, nil
		},
	}
	mux := vectorizeMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/internal/vectorize/count?dataset=ofac", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1234}`, rec.Body.String())
}

func TestVectorizeCountEndpointRequiresDataset(t *testing.T) {
	mux := vectorizeMux(&mockVectorizeService{})

	req := httptest.NewRequest(http.MethodGet, "/internal/vectorize/count", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVectorizeDeleteEndpoint(t *testing.T) {
	svc := &mockVectorizeService{
		deleteFunc: func(_ context.Context, dataset string) (int, error) {
			assert.Equal(t, "ofac", dataset)
			return 57, nil
		},
	}
	mux := vectorizeMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/internal/vectorize/delete-by-dataset",
		strings.NewReader(`{"dataset":"ofac"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted_count":57}`, rec.Body.String())
}

func TestVectorizeIndexBatchEndpoint(t *testing.T) {
	svc := &mockVectorizeService{
		indexBatchFunc: func(_ context.Context, dataset string, offset, limit int) (*services.IndexBatchResult, error) {
			assert.Equal(t, "ofac", dataset)
			assert.Equal(t, 500, offset)
			assert.Equal(t, 500, limit)
			return &services.IndexBatchResult{IndexedCount: 498, Errors: []string{"embed records 712-715: timeout"}}, nil
		},
	}
	mux := vectorizeMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/internal/vectorize/index-batch",
		strings.NewReader(`{"dataset":"ofac","offset":500,"limit":500}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"indexed_count":498,"errors":["embed records 712-715: timeout"]}`, rec.Body.String())
}

func TestVectorizeIndexBatchEndpointRequiresLimit(t *testing.T) {
	mux := vectorizeMux(&mockVectorizeService{})

	req := httptest.NewRequest(http.MethodPost, "/internal/vectorize/index-batch",
		strings.NewReader(`{"dataset":"ofac","offset":0}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVectorizeEndpointsUnconfigured(t *testing.T) {
	svc := &mockVectorizeService{
		countFunc: func(context.Context, string) (int, error) {
			return 0, apperrors.ErrServiceUnavailable
		},
	}
	mux := vectorizeMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/internal/vectorize/count?dataset=ofac", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVectorizeCompleteEndpoint(t *testing.T) {
	mux := vectorizeMux(&mockVectorizeService{})

	req := httptest.NewRequest(http.MethodPost, "/internal/vectorize/complete",
		strings.NewReader(`{"dataset":"ofac","total_indexed":1200,"total_batches":3}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
