package eventhub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"qna-agent/internal/domain"
)

// defaultBufferSize is the per-subscription channel capacity when the hub
// is constructed with a non-positive size.
const defaultBufferSize = 16

// Subscription is one observer's live registration for a chat's event
// stream. It is owned by the Hub for its lifetime: created on Subscribe,
// terminal after Unsubscribe. A disconnected observer must subscribe again
// for a fresh channel.
type Subscription struct {
	id uint64
	ch chan domain.Event
}

// Events returns the receive side of the subscription's delivery channel.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Hub fans out chat events to registered subscribers. It is an explicitly
// constructed instance owned by the composition root; there is no package
// global. Safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	subs    map[string][]*Subscription
	nextID  atomic.Uint64
	bufSize int
	logger  *slog.Logger
}

// New creates a Hub whose subscriptions buffer up to bufSize events.
func New(bufSize int, logger *slog.Logger) *Hub {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Hub{
		subs:    make(map[string][]*Subscription),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe registers a new delivery channel for the chat.
// Safe to call concurrently with Publish and other Subscribes.
func (h *Hub) Subscribe(chatID string) *Subscription {
	sub := &Subscription{
		id: h.nextID.Add(1),
		ch: make(chan domain.Event, h.bufSize),
	}

	h.mu.Lock()
	h.subs[chatID] = append(h.subs[chatID], sub)
	h.mu.Unlock()

	h.logger.Debug("event subscriber added", "chat_id", chatID)
	return sub
}

// Unsubscribe removes exactly that subscription. Removing the last
// subscription for a chat frees the chat's tracking entry. Unsubscribing
// a subscription that was already removed is a no-op.
func (h *Hub) Unsubscribe(chatID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[chatID]
	if !ok {
		return
	}
	for i, s := range subs {
		if s.id == sub.id {
			h.subs[chatID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[chatID]) == 0 {
		delete(h.subs, chatID)
	}
	h.logger.Debug("event subscriber removed", "chat_id", chatID)
}

// Publish delivers event to every subscription currently registered for
// chatID. The subscriber list is snapshotted under the lock and delivery
// happens outside it, so a slow subscriber cannot block registry mutations
// for unrelated chats. Delivery is non-blocking best-effort: a subscriber
// whose buffer is full has the event dropped (logged, never fatal).
func (h *Hub) Publish(chatID string, event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.ChatID = chatID

	h.mu.Lock()
	subs := make([]*Subscription, len(h.subs[chatID]))
	copy(subs, h.subs[chatID])
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("subscriber buffer full, event dropped",
				"chat_id", chatID,
				"event", string(event.Type),
			)
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a chat.
func (h *Hub) SubscriberCount(chatID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[chatID])
}

// hasEntry reports whether a tracking entry exists for chatID, used by
// tests to verify that the last unsubscribe frees the entry.
func (h *Hub) hasEntry(chatID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[chatID]
	return ok
}
