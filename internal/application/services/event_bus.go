package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/docuflow/backend/internal/domain/events"
	"github.com/docuflow/backend/internal/domain/ports"
)

// EventType is an alias to the domain type
type EventType = events.EventType

// EngineEvent wraps a payload published on the bus
type EngineEvent struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// EventHandler is a function that handles an event.
// Using the type from ports to ensure interface compatibility.
type EventHandler = ports.EventHandler

// subscription pairs a handler with the token its unsubscribe closure removes
// it by. Functions are not comparable in Go, so identity lives in the token.
type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus manages the in-process publish-subscribe seam between the engine
// and delivery collaborators. It implements ports.EventPublisher.
type EventBus struct {
	handlers map[EventType][]subscription
	nextID   uint64
	mu       sync.RWMutex
}

// Ensure EventBus implements ports.EventPublisher at compile time
var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		subs := eb.handlers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				eb.handlers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish publishes an event to all registered handlers in sequence
func (eb *EventBus) Publish(ctx context.Context, eventType EventType, payload interface{}) error {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[eventType]))
	for _, sub := range eb.handlers[eventType] {
		handlers = append(handlers, sub.handler)
	}
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	event := EngineEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	for _, handler := range handlers {
		if err := handler(ctx, event.Payload); err != nil {
			return fmt.Errorf("EventBus handler error for %s: %w", eventType, err)
		}
	}

	return nil
}

// PublishAsync publishes an event asynchronously
func (eb *EventBus) PublishAsync(eventType EventType, payload interface{}) {
	go func() {
		// Background context: async events are decoupled from the request/tx
		if err := eb.Publish(context.Background(), eventType, payload); err != nil {
			log.Printf("EventBus async publish error: %v", err)
		}
	}()
}

// Clear removes all handlers (useful for testing)
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers = make(map[EventType][]subscription)
}
