package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/cache"
	"github.com/sanctio/screening-engine/pkg/models"
	"github.com/sanctio/screening-engine/pkg/repositories"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// RecordsHandler serves the cache-fronted dataset listing.
type RecordsHandler struct {
	records repositories.RecordRepository
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewRecordsHandler creates a new RecordsHandler. cache may be nil; the
// handler then always reads through to the store.
func NewRecordsHandler(records repositories.RecordRepository, c *cache.Cache, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		cache:   c,
		logger:  logger.Named("records-handler"),
	}
}

// RegisterRoutes registers the record listing routes on the given mux.
func (h *RecordsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /datasets/{dataset}/records", h.List)
}

type recordListResponse struct {
	Dataset string                    `json:"dataset"`
	Total   int                       `json:"total"`
	Offset  int                       `json:"offset"`
	Limit   int                       `json:"limit"`
	Records []*models.WatchlistRecord `json:"records"`
}

// List handles GET /datasets/{dataset}/records?offset=&limit=.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	dataset := r.PathValue("dataset")

	offset := parseIntParam(r, "offset", 0)
	limit := parseIntParam(r, "limit", defaultPageLimit)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	args := cache.CanonicalizeQuery(fmt.Sprintf("/datasets/%s/records?limit=%d&offset=%d", dataset, limit, offset))

	if h.cache != nil {
		if raw, ok := h.cache.Get(r.Context(), "list", args); ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(raw)
			return
		}
	}

	records, err := h.records.ListPage(r.Context(), dataset, offset, limit)
	if err != nil {
		h.logger.Error("failed to list records", zap.String("dataset", dataset), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to list records")
		return
	}
	total, err := h.records.CountByDataset(r.Context(), dataset)
	if err != nil {
		h.logger.Error("failed to count records", zap.String("dataset", dataset), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to count records")
		return
	}

	if records == nil {
		records = []*models.WatchlistRecord{}
	}
	response := recordListResponse{
		Dataset: dataset,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		Records: records,
	}

	if h.cache != nil {
		h.cache.Put(r.Context(), "list", args, response)
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to encode records response", zap.Error(err))
	}
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
