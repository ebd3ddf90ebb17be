// Package broadcast fans screening lifecycle events out to subscribers
// keyed by search id. Hubs are created lazily on first subscribe and torn
// down when the last subscriber leaves; broadcasting to an id nobody
// watches is a valid no-op.
package broadcast

import (
	"sync"

	"go.uber.org/zap"
)

// Event is one lifecycle notification for a search.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events rather than blocking publishers.
const subscriberBuffer = 16

type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// Broadcaster routes events to per-search-id hubs.
type Broadcaster struct {
	mu     sync.Mutex
	hubs   map[string]*hub
	logger *zap.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		hubs:   make(map[string]*hub),
		logger: logger.Named("broadcast"),
	}
}

// Subscribe registers a listener for one search id. The returned cancel
// func must be called exactly once; it closes the channel and removes the
// hub when it was the last subscriber.
func (b *Broadcaster) Subscribe(searchID string) (<-chan Event, func()) {
	b.mu.Lock()
	h, ok := b.hubs[searchID]
	if !ok {
		h = &hub{subs: make(map[int]chan Event)}
		b.hubs[searchID] = h
	}
	b.mu.Unlock()

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
		empty := len(h.subs) == 0
		h.mu.Unlock()

		if empty {
			b.mu.Lock()
			// Re-check under the registry lock: a new subscriber may have
			// arrived between the two critical sections.
			h.mu.Lock()
			if len(h.subs) == 0 && b.hubs[searchID] == h {
				delete(b.hubs, searchID)
			}
			h.mu.Unlock()
			b.mu.Unlock()
		}
	}
	return ch, cancel
}

// Broadcast delivers an event to every subscriber of the search id and
// returns how many received it. Zero is not an error; slow subscribers with
// full buffers are skipped.
func (b *Broadcaster) Broadcast(searchID string, event Event) int {
	b.mu.Lock()
	h, ok := b.hubs[searchID]
	b.mu.Unlock()
	if !ok {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for id, ch := range h.subs {
		select {
		case ch <- event:
			delivered++
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("search_id", searchID),
				zap.Int("subscriber", id),
				zap.String("event", event.Event))
		}
	}
	return delivered
}

// SubscriberCount reports current listeners for a search id.
func (b *Broadcaster) SubscriberCount(searchID string) int {
	b.mu.Lock()
	h, ok := b.hubs[searchID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
