package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	ch1, cancel1 := b.Subscribe("search-1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("search-1")
	defer cancel2()

	delivered := b.Broadcast("search-1", Event{Event: "completed"})
	assert.Equal(t, 2, delivered)

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, "completed", ev1.Event)
	assert.Equal(t, "completed", ev2.Event)
}

func TestBroadcastNoSubscribers(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	assert.Equal(t, 0, b.Broadcast("nobody", Event{Event: "completed"}))
}

func TestBroadcastIsolatedBySearchID(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	ch, cancel := b.Subscribe("search-a")
	defer cancel()

	assert.Equal(t, 0, b.Broadcast("search-b", Event{Event: "started"}))
	assert.Equal(t, 1, b.Broadcast("search-a", Event{Event: "started"}))
	assert.Equal(t, "started", (<-ch).Event)
}

func TestCancelClosesChannelAndRemovesHub(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	ch, cancel := b.Subscribe("search-1")
	require.Equal(t, 1, b.SubscriberCount("search-1"))

	cancel()

	_, open := <-ch
	assert.False(t, open, "channel must be closed after cancel")
	assert.Equal(t, 0, b.SubscriberCount("search-1"))
	assert.Equal(t, 0, b.Broadcast("search-1", Event{Event: "late"}))
}

func TestCancelIsIdempotent(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	_, cancel := b.Subscribe("search-1")
	cancel()
	cancel()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())

	_, cancel := b.Subscribe("search-1")
	defer cancel()

	// Fill the buffer, then one more; the overflow is dropped, not blocked.
	for i := 0; i < subscriberBuffer; i++ {
		assert.Equal(t, 1, b.Broadcast("search-1", Event{Event: "tick"}))
	}
	assert.Equal(t, 0, b.Broadcast("search-1", Event{Event: "overflow"}))
}
