package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/apperrors"
	"github.com/sanctio/screening-engine/pkg/broadcast"
	"github.com/sanctio/screening-engine/pkg/services"
)

// Publisher fans a search lifecycle event out to live subscribers.
type Publisher interface {
	Broadcast(searchID string, event broadcast.Event) int
}

// SearchHandler exposes the hybrid screening query endpoint.
type SearchHandler struct {
	search      services.SearchService
	broadcaster Publisher
	logger      *zap.Logger
}

// NewSearchHandler creates a new SearchHandler. broadcaster may be nil.
func NewSearchHandler(search services.SearchService, broadcaster Publisher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		search:      search,
		broadcaster: broadcaster,
		logger:      logger.Named("search-handler"),
	}
}

// RegisterRoutes registers the search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /search", h.Search)
}

type searchRequestBody struct {
	services.SearchRequest
	// SearchID, when set, keys the live event stream for this query.
	SearchID string `json:"searchId,omitempty"`
}

// Search handles POST /search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}
	if req.Threshold == 0 {
		req.Threshold = 0.7
	}

	matches, err := h.search.Search(r.Context(), req.SearchRequest)
	if err != nil {
		if errors.Is(err, apperrors.ErrServiceUnavailable) {
			_ = ErrorResponse(w, http.StatusServiceUnavailable, "service_unavailable", "search is not configured")
			return
		}
		h.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		h.publish(req.SearchID, broadcast.Event{Event: "search_failed"})
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}

	response := map[string]any{"matches": matches, "total": len(matches)}
	h.publish(req.SearchID, broadcast.Event{Event: "search_completed", Payload: response})

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to encode search response", zap.Error(err))
	}
}

// publish never fails the triggering request; zero subscribers is normal.
func (h *SearchHandler) publish(searchID string, event broadcast.Event) {
	if h.broadcaster == nil || searchID == "" {
		return
	}
	delivered := h.broadcaster.Broadcast(searchID, event)
	h.logger.Debug("search event broadcast",
		zap.String("search_id", searchID),
		zap.String("event", event.Event),
		zap.Int("delivered", delivered))
}
