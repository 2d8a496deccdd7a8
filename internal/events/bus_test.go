package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(10, testLogger())

	sub1 := bus.Subscribe("game-1")
	sub2 := bus.Subscribe("game-1")
	other := bus.Subscribe("game-2")

	bus.Publish("game-1", []byte(`{"n":1}`))

	assert.Equal(t, []byte(`{"n":1}`), <-sub1.C)
	assert.Equal(t, []byte(`{"n":1}`), <-sub2.C)
	assert.Len(t, other.C, 0, "subscriber of another game must not receive the event")
}

func TestPublishDropsOnlyForFullSubscriber(t *testing.T) {
	bus := NewBus(3, testLogger())

	full := bus.Subscribe("game-1")
	healthy := bus.Subscribe("game-1")

	// Drain healthy concurrently so it never fills
	received := make(chan []byte, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			received <- <-healthy.C
		}
	}()

	for i := 0; i < 5; i++ {
		bus.Publish("game-1", []byte(fmt.Sprintf(`{"n":%d}`, i)))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("healthy subscriber did not receive all events")
	}
	assert.Len(t, received, 5, "non-full subscriber receives every event")

	// The full subscriber kept only its queue capacity; the excess was dropped
	assert.Equal(t, 3, len(full.C))
	first := <-full.C
	assert.Equal(t, []byte(`{"n":0}`), first, "drops happen at the tail, oldest events are kept")
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(10, testLogger())

	sub := bus.Subscribe("game-1")
	require.Equal(t, 1, bus.SubscriberCount("game-1"))

	bus.Unsubscribe("game-1", sub)
	assert.Equal(t, 0, bus.SubscriberCount("game-1"))

	// Second removal, and removal of a foreign subscription, are no-ops
	bus.Unsubscribe("game-1", sub)
	bus.Unsubscribe("game-1", &Subscription{GameID: "game-1", C: make(chan []byte, 1)})
	assert.Equal(t, 0, bus.SubscriberCount("game-1"))

	bus.Publish("game-1", []byte(`{}`))
	assert.Len(t, sub.C, 0, "unsubscribed queue no longer receives events")
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus(50, testLogger())

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				bus.Publish("game-1", []byte(`{}`))
			}
		}
	}()

	for i := 0; i < 100; i++ {
		sub := bus.Subscribe("game-1")
		bus.Unsubscribe("game-1", sub)
	}
	close(stop)
}

func TestMemoryLatestCache(t *testing.T) {
	cache := NewMemoryLatestCache(time.Hour)
	ctx := context.Background()

	_, found, err := cache.GetLatest(ctx, "game-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.SetLatest(ctx, "game-1", []byte(`{"n":1}`)))
	require.NoError(t, cache.SetLatest(ctx, "game-1", []byte(`{"n":2}`)))

	payload, found, err := cache.GetLatest(ctx, "game-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"n":2}`), payload, "cache holds only the most recent event")
}

func TestMemoryLatestCacheExpiry(t *testing.T) {
	cache := NewMemoryLatestCache(time.Hour)
	ctx := context.Background()

	now := time.Now()
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.SetLatest(ctx, "game-1", []byte(`{}`)))

	cache.now = func() time.Time { return now.Add(61 * time.Minute) }
	_, found, err := cache.GetLatest(ctx, "game-1")
	require.NoError(t, err)
	assert.False(t, found, "entries older than the TTL are not returned")
}
