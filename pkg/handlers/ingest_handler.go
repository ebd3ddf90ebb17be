package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/services"
)

// Invalidator rotates a cache version token after a write.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// IngestHandler exposes the run lifecycle and the internal callback surface
// driven by the external batch worker. Callbacks referencing unknown runs
// are acknowledged as no-ops inside the service layer.
type IngestHandler struct {
	ingestion services.IngestionService
	cache     Invalidator
	logger    *zap.Logger
}

// NewIngestHandler creates a new IngestHandler. cache may be nil.
func NewIngestHandler(ingestion services.IngestionService, cache Invalidator, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		ingestion: ingestion,
		cache:     cache,
		logger:    logger.Named("ingest-handler"),
	}
}

// RegisterRoutes registers the ingestion routes on the given mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /ingestion/runs", h.StartRun)
	mux.HandleFunc("POST /ingestion/runs/{id}/upload-complete", h.CompleteUpload)
	mux.HandleFunc("POST /internal/{dataset}/truncate", h.Truncate)
	mux.HandleFunc("POST /internal/{dataset}/batch", h.InsertBatch)
	mux.HandleFunc("POST /internal/{dataset}/complete", h.Complete)
	mux.HandleFunc("POST /internal/{dataset}/failed", h.Fail)
}

// StartRun handles POST /ingestion/runs.
func (h *IngestHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dataset   string `json:"dataset"`
		SourceURL string `json:"source_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Dataset == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "dataset is required")
		return
	}

	run, err := h.ingestion.StartRun(r.Context(), req.Dataset, req.SourceURL)
	if err != nil {
		h.logger.Error("failed to start run", zap.String("dataset", req.Dataset), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to start run")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, run); err != nil {
		h.logger.Error("failed to encode run response", zap.Error(err))
	}
}

// CompleteUpload handles POST /ingestion/runs/{id}/upload-complete.
func (h *IngestHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.ingestion.CompleteUpload(r.Context(), runID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "run not found")
		case errors.Is(err, apperrors.ErrInvalidState):
			_ = ErrorResponse(w, http.StatusConflict, "invalid_state", err.Error())
		default:
			h.logger.Error("failed to complete upload", zap.String("run_id", runID.String()), zap.Error(err))
			_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to complete upload")
		}
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// Truncate handles POST /internal/{dataset}/truncate.
func (h *IngestHandler) Truncate(w http.ResponseWriter, r *http.Request) {
	dataset := r.PathValue("dataset")

	var req struct {
		RunID uuid.UUID `json:"run_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	deleted, err := h.ingestion.Truncate(r.Context(), req.RunID, dataset)
	if err != nil {
		h.logger.Error("failed to truncate dataset", zap.String("dataset", dataset), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to truncate dataset")
		return
	}

	h.invalidate(r.Context())
	_ = WriteJSON(w, http.StatusOK, map[string]int64{"deleted_count": deleted})
}

// InsertBatch handles POST /internal/{dataset}/batch.
func (h *IngestHandler) InsertBatch(w http.ResponseWriter, r *http.Request) {
	dataset := r.PathValue("dataset")

	var req struct {
		RunID        uuid.UUID                 `json:"run_id"`
		BatchNumber  int                       `json:"batch_number"`
		TotalBatches int                       `json:"total_batches"`
		Records      []*models.WatchlistRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Records) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "records is required")
		return
	}

	result, err := h.ingestion.InsertBatch(r.Context(), req.RunID, dataset, req.BatchNumber, req.TotalBatches, req.Records)
	if err != nil {
		h.logger.Error("failed to insert batch",
			zap.String("dataset", dataset),
			zap.Int("batch_number", req.BatchNumber),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to insert batch")
		return
	}

	h.invalidate(r.Context())
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"inserted": result.Inserted,
		"errors":   emptyErrors(result.Errors),
	})
}

// Complete handles POST /internal/{dataset}/complete.
func (h *IngestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	dataset := r.PathValue("dataset")

	var req struct {
		RunID             uuid.UUID `json:"run_id"`
		TotalRecords      int       `json:"total_records"`
		TotalBatches      int       `json:"total_batches"`
		Errors            []string  `json:"errors"`
		SkipVectorization bool      `json:"skip_vectorization"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.ingestion.Complete(r.Context(), req.RunID, dataset, req.TotalRecords, req.TotalBatches, req.Errors, req.SkipVectorization)
	if err != nil {
		h.logger.Error("failed to complete run",
			zap.String("dataset", dataset),
			zap.String("run_id", req.RunID.String()),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to complete run")
		return
	}

	h.invalidate(r.Context())

	resp := map[string]any{}
	if result.VectorizeJobID != nil {
		resp["vectorization_job_id"] = result.VectorizeJobID.String()
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

// Fail handles POST /internal/{dataset}/failed.
func (h *IngestHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID uuid.UUID `json:"run_id"`
		Error string    `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.ingestion.Fail(r.Context(), req.RunID, req.Error); err != nil {
		h.logger.Error("failed to mark run failed", zap.String("run_id", req.RunID.String()), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to mark run failed")
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{})
}

func (h *IngestHandler) invalidate(ctx context.Context) {
	if h.cache != nil {
		h.cache.Invalidate(ctx)
	}
}

func (h *IngestHandler) runIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid run id")
		return uuid.Nil, false
	}
	return runID, true
}

// emptyErrors keeps the JSON shape stable: [] instead of null.
func emptyErrors(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
