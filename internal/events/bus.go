package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the number of pending events a subscriber may buffer
// before new events for it are dropped.
const DefaultQueueSize = 200

// Subscription is one viewer's handle on a game's event stream. Events arrive
// on C already serialized; the channel is bounded and never blocks the
// publisher.
type Subscription struct {
	GameID string
	C      chan []byte
}

// Bus fans published events out to every subscriber of a game.
//
// Slow consumers lose freshness, not correctness: when a subscriber's queue is
// full the event is dropped for that subscriber only, since the next event
// supersedes the current state.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]*Subscription
	queueSize int
	logger    *logrus.Logger
}

// NewBus creates an event bus with the given per-subscriber queue capacity.
// Zero or negative capacity falls back to DefaultQueueSize.
func NewBus(queueSize int, logger *logrus.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subs:      make(map[string][]*Subscription),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe registers a new bounded queue under gameID
func (b *Bus) Subscribe(gameID string) *Subscription {
	sub := &Subscription{
		GameID: gameID,
		C:      make(chan []byte, b.queueSize),
	}

	b.mu.Lock()
	b.subs[gameID] = append(b.subs[gameID], sub)
	total := len(b.subs[gameID])
	b.mu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"game_id":     gameID,
		"subscribers": total,
	}).Debug("Stream subscriber added")

	return sub
}

// Unsubscribe removes a subscription. Idempotent: removing a subscription
// twice, or one that was never registered, is not an error.
func (b *Bus) Unsubscribe(gameID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.subs[gameID]
	for i, s := range queue {
		if s == sub {
			b.subs[gameID] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(b.subs[gameID]) == 0 {
		delete(b.subs, gameID)
	}
}

// Publish delivers payload to every current subscriber of gameID. Full queues
// drop the event for that subscriber; other subscribers are unaffected and the
// publisher never blocks.
func (b *Bus) Publish(gameID string, payload []byte) {
	b.mu.RLock()
	queue := make([]*Subscription, len(b.subs[gameID]))
	copy(queue, b.subs[gameID])
	b.mu.RUnlock()

	for _, sub := range queue {
		select {
		case sub.C <- payload:
		default:
			b.logger.WithField("game_id", gameID).Warn("Subscriber queue full, dropping event")
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a game
func (b *Bus) SubscriberCount(gameID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[gameID])
}
