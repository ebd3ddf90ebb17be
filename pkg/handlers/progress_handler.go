package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/services"
)

// ProgressHandler exposes combined ingestion+vectorization progress to
// pollers.
type ProgressHandler struct {
	progress services.ProgressService
	logger   *zap.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progress services.ProgressService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		logger:   logger.Named("progress-handler"),
	}
}

// RegisterRoutes registers the progress routes on the given mux.
func (h *ProgressHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ingestion/runs/{id}/progress", h.GetProgress)
}

// GetProgress handles GET /ingestion/runs/{id}/progress.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid run id")
		return
	}

	progress, err := h.progress.GetProgress(r.Context(), runID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		h.logger.Error("failed to get progress", zap.String("run_id", runID.String()), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to get progress")
		return
	}

	if err := WriteJSON(w, http.StatusOK, progress); err != nil {
		h.logger.Error("failed to encode progress response", zap.Error(err))
	}
}
