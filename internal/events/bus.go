// Package events provides a thread-safe pub/sub bus for connection and sync
// lifecycle events.
package events

import (
	"sync"
	"time"

	"possync-go/internal/config"
)

// EventType represents the type of event
type EventType string

const (
	// Connection events
	ConnectionEstablished EventType = "connection_established"
	ConnectionLost        EventType = "connection_lost"

	// Token events
	TokenStored  EventType = "token_stored"
	TokenCleared EventType = "token_cleared"

	// Dual-write sync events
	StockSynced     EventType = "stock_synced"
	StockRolledBack EventType = "stock_rolled_back"
)

// Event represents a single event in the system
type Event struct {
	Type      EventType   `json:"type"`
	URL       string      `json:"url,omitempty"`
	ProductID string      `json:"product_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Bus is a thread-safe event bus for pub/sub messaging
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	closed      bool
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Subscribe subscribes to a specific event type and returns a channel for
// receiving events. The channel is buffered to prevent blocking publishers.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Return a closed channel if bus is closed
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, config.EventChannelBufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Unsubscribe removes a subscription channel
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[eventType]
	if !exists {
		return
	}

	for i, subscriber := range subscribers {
		if subscriber == ch {
			// Remove from slice without preserving order
			b.subscribers[eventType][i] = b.subscribers[eventType][len(b.subscribers[eventType])-1]
			b.subscribers[eventType] = b.subscribers[eventType][:len(b.subscribers[eventType])-1]
			break
		}
	}

	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
}

// Publish publishes an event to all subscribers of that event type.
// Non-blocking - if a subscriber's channel is full, the event is dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel is full, drop event to prevent blocking
		}
	}
}

// Close closes the event bus and all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}

	b.subscribers = make(map[EventType][]chan Event)
}

// SubscriberCount returns the number of subscribers for a specific event type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[eventType])
}

// IsClosed returns whether the bus has been closed
func (b *Bus) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.closed
}
