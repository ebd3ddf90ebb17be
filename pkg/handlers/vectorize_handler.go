package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/services"
)

// VectorizeHandler exposes the internal vectorization surface consumed by
// an external batch worker. The in-process job manager drives the same
// service; these routes exist so a scheduler can run a reindex step by step.
type VectorizeHandler struct {
	vectorize services.VectorizeService
	logger    *zap.Logger
}

// NewVectorizeHandler creates a new VectorizeHandler.
func NewVectorizeHandler(vectorize services.VectorizeService, logger *zap.Logger) *VectorizeHandler {
	return &VectorizeHandler{
		vectorize: vectorize,
		logger:    logger.Named("vectorize-handler"),
	}
}

// RegisterRoutes registers the vectorization routes on the given mux.
func (h *VectorizeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /internal/vectorize/count", h.Count)
	mux.HandleFunc("POST /internal/vectorize/delete-by-dataset", h.DeleteByDataset)
	mux.HandleFunc("POST /internal/vectorize/index-batch", h.IndexBatch)
	mux.HandleFunc("POST /internal/vectorize/complete", h.Complete)
}

// Count handles GET /internal/vectorize/count?dataset=.
func (h *VectorizeHandler) Count(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	if dataset == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "dataset is required")
		return
	}

	count, err := h.vectorize.Count(r.Context(), dataset)
	if err != nil {
		h.writeServiceError(w, "count records", dataset, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// DeleteByDataset handles POST /internal/vectorize/delete-by-dataset.
func (h *VectorizeHandler) DeleteByDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dataset string `json:"dataset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dataset == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "dataset is required")
		return
	}

	deleted, err := h.vectorize.DeleteByDataset(r.Context(), req.Dataset)
	if err != nil {
		h.writeServiceError(w, "delete vectors", req.Dataset, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]int{"deleted_count": deleted})
}

// IndexBatch handles POST /internal/vectorize/index-batch.
func (h *VectorizeHandler) IndexBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dataset      string `json:"dataset"`
		Offset       int    `json:"offset"`
		Limit        int    `json:"limit"`
		BatchNumber  int    `json:"batch_number"`
		TotalBatches int    `json:"total_batches"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dataset == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "dataset is required")
		return
	}
	if req.Limit <= 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "limit must be positive")
		return
	}

	result, err := h.vectorize.IndexBatch(r.Context(), req.Dataset, req.Offset, req.Limit)
	if err != nil {
		h.writeServiceError(w, "index batch", req.Dataset, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"indexed_count": result.IndexedCount,
		"errors":        emptyErrors(result.Errors),
	})
}

// Complete handles POST /internal/vectorize/complete. The scheduler reports
// the overall outcome of a stepped reindex; nothing to persist, just audit.
func (h *VectorizeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dataset      string   `json:"dataset"`
		TotalIndexed int      `json:"total_indexed"`
		TotalBatches int      `json:"total_batches"`
		Errors       []string `json:"errors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dataset == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "dataset is required")
		return
	}

	h.logger.Info("vectorization completed",
		zap.String("dataset", req.Dataset),
		zap.Int("total_indexed", req.TotalIndexed),
		zap.Int("total_batches", req.TotalBatches),
		zap.Int("errors", len(req.Errors)))
	_ = WriteJSON(w, http.StatusOK, map[string]any{})
}

func (h *VectorizeHandler) writeServiceError(w http.ResponseWriter, op, dataset string, err error) {
	if errors.Is(err, apperrors.ErrServiceUnavailable) {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "service_unavailable", "vectorization is not configured")
		return
	}
	h.logger.Error("vectorize operation failed",
		zap.String("operation", op),
		zap.String("dataset", dataset),
		zap.Error(err))
	_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
}
