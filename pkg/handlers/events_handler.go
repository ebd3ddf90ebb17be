package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/broadcast"
)

// EventsHandler streams search lifecycle events to subscribers over SSE.
type EventsHandler struct {
	broadcaster *broadcast.Broadcaster
	logger      *zap.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(broadcaster *broadcast.Broadcaster, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		broadcaster: broadcaster,
		logger:      logger.Named("events-handler"),
	}
}

// RegisterRoutes registers the event stream routes on the given mux.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /events/{searchId}", h.Stream)
}

// Stream handles GET /events/{searchId}. The connection stays open until
// the client disconnects; each event is one SSE message with a JSON body.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	searchID := r.PathValue("searchId")
	if searchID == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "search id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.broadcaster.Subscribe(searchID)
	defer cancel()

	h.logger.Debug("subscriber connected", zap.String("search_id", searchID))

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("subscriber disconnected", zap.String("search_id", searchID))
			return
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to marshal event",
					zap.String("search_id", searchID),
					zap.String("event", event.Event),
					zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
