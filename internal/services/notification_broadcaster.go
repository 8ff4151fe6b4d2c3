package services

import (
	"errors"
	"strings"
	"sync"

	"bridge-backend/internal/metrics"
)

// Broadcaster errors
var (
	ErrObserverNotFound     = errors.New("observer not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Observer is one connected consumer of bridge events. MessageChan is
// buffered; the transport layer drains it into the wire connection.
type Observer struct {
	ID          string
	MessageChan chan interface{}

	mu       sync.RWMutex
	channels map[string]bool
}

// channelEntry holds the subscriber set of one channel behind its own lock,
// so publishing on unrelated channels never serializes.
type channelEntry struct {
	mu        sync.RWMutex
	observers map[string]bool
}

// NotificationBroadcaster is the channel-based publish/subscribe fan-out for
// bridge state changes. It owns the whole subscription registry: the
// transport layer gets a handle to this object, never a global map.
type NotificationBroadcaster struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	channels  map[string]*channelEntry
}

// NewNotificationBroadcaster creates an empty registry.
func NewNotificationBroadcaster() *NotificationBroadcaster {
	return &NotificationBroadcaster{
		observers: make(map[string]*Observer),
		channels:  make(map[string]*channelEntry),
	}
}

// RegisterObserver adds a connected observer with a buffered message channel.
func (b *NotificationBroadcaster) RegisterObserver(observerID string, buffer int) *Observer {
	observer := &Observer{
		ID:          observerID,
		MessageChan: make(chan interface{}, buffer),
		channels:    make(map[string]bool),
	}

	b.mu.Lock()
	b.observers[observerID] = observer
	b.mu.Unlock()

	metrics.WebSocketClientsConnected.Inc()
	return observer
}

// Subscribe adds the observer to a channel's subscriber set.
func (b *NotificationBroadcaster) Subscribe(observerID, channel string) error {
	b.mu.Lock()
	observer, exists := b.observers[observerID]
	if !exists {
		b.mu.Unlock()
		return ErrObserverNotFound
	}
	entry := b.channels[channel]
	if entry == nil {
		entry = &channelEntry{observers: make(map[string]bool)}
		b.channels[channel] = entry
	}
	b.mu.Unlock()

	entry.mu.Lock()
	entry.observers[observerID] = true
	entry.mu.Unlock()

	observer.mu.Lock()
	observer.channels[channel] = true
	observer.mu.Unlock()

	return nil
}

// Unsubscribe removes the observer from one channel.
func (b *NotificationBroadcaster) Unsubscribe(observerID, channel string) error {
	b.mu.RLock()
	observer, exists := b.observers[observerID]
	entry := b.channels[channel]
	b.mu.RUnlock()

	if !exists {
		return ErrObserverNotFound
	}

	observer.mu.Lock()
	_, subscribed := observer.channels[channel]
	delete(observer.channels, channel)
	observer.mu.Unlock()

	if !subscribed {
		return ErrSubscriptionNotFound
	}

	if entry != nil {
		entry.mu.Lock()
		delete(entry.observers, observerID)
		entry.mu.Unlock()
	}

	return nil
}

// Publish delivers an event to every subscriber of the channel. A channel
// with no subscribers is a no-op, not an error. Sends are non-blocking: a
// full observer channel drops the event rather than stalling the publisher.
func (b *NotificationBroadcaster) Publish(channel string, event interface{}) {
	b.mu.RLock()
	entry := b.channels[channel]
	b.mu.RUnlock()

	if entry == nil {
		return
	}

	entry.mu.RLock()
	ids := make([]string, 0, len(entry.observers))
	for id := range entry.observers {
		ids = append(ids, id)
	}
	entry.mu.RUnlock()

	if len(ids) == 0 {
		return
	}

	b.mu.RLock()
	targets := make([]*Observer, 0, len(ids))
	for _, id := range ids {
		if observer, exists := b.observers[id]; exists {
			targets = append(targets, observer)
		}
	}
	b.mu.RUnlock()

	for _, observer := range targets {
		select {
		case observer.MessageChan <- event:
			metrics.BroadcastDeliveries.WithLabelValues(channelKind(channel)).Inc()
		default:
			// Observer is not keeping up; dropping beats blocking the tracker.
			metrics.BroadcastDropped.Inc()
		}
	}
}

// Disconnect removes the observer and all its subscriptions. Idempotent:
// disconnecting twice, or an unknown observer, has no effect.
func (b *NotificationBroadcaster) Disconnect(observerID string) {
	b.mu.Lock()
	observer, exists := b.observers[observerID]
	delete(b.observers, observerID)
	b.mu.Unlock()

	if !exists {
		return
	}

	observer.mu.Lock()
	subscribed := make([]string, 0, len(observer.channels))
	for channel := range observer.channels {
		subscribed = append(subscribed, channel)
	}
	observer.channels = make(map[string]bool)
	observer.mu.Unlock()

	for _, channel := range subscribed {
		b.mu.RLock()
		entry := b.channels[channel]
		b.mu.RUnlock()
		if entry != nil {
			entry.mu.Lock()
			delete(entry.observers, observerID)
			entry.mu.Unlock()
		}
	}

	metrics.WebSocketClientsConnected.Dec()
}

// Subscriptions returns the channels the observer is currently subscribed to.
func (b *NotificationBroadcaster) Subscriptions(observerID string) []string {
	b.mu.RLock()
	observer, exists := b.observers[observerID]
	b.mu.RUnlock()

	if !exists {
		return nil
	}

	observer.mu.RLock()
	defer observer.mu.RUnlock()
	channels := make([]string, 0, len(observer.channels))
	for channel := range observer.channels {
		channels = append(channels, channel)
	}
	return channels
}

// channelKind reduces a channel name to its metric label
// ("transactions.abc123" -> "transactions").
func channelKind(channel string) string {
	if i := strings.IndexByte(channel, '.'); i > 0 {
		return channel[:i]
	}
	return channel
}
