package events

import (
	"context"
	"fmt"
	"time"
)

// Event represents a generic event in the system
type Event interface {
	// Type returns the event type identifier (e.g., "ixf.import.completed")
	Type() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// Metadata returns additional context-specific data
	Metadata() map[string]any
	// ID returns a unique identifier for this event
	ID() string
}

// EventHandler processes events of a specific type
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides a generic interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for events of a specific type and returns
	// a function removing it again
	Subscribe(eventType string, handler EventHandler) (UnsubscribeFunc, error)

	// SubscribeWithPriority registers a handler with a specific priority.
	// Higher priority handlers are called first
	SubscribeWithPriority(eventType string, handler EventHandler, priority Priority) (UnsubscribeFunc, error)

	// Close gracefully shuts down the event bus
	Close() error

	// Health returns the health status of the event bus
	Health() Health
}

// UnsubscribeFunc is a function that can be called to unsubscribe from events
type UnsubscribeFunc func() error

// Priority defines event handler execution priority
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// Health represents the health status of an event bus
type Health struct {
	Status      string `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string `json:"message"`
	Subscribers int    `json:"subscribers"`
	LastError   string `json:"last_error"`
}

// CreateTypedHandler creates a handler that only accepts events of type T
func CreateTypedHandler[T Event](handler func(ctx context.Context, event T) error) EventHandler {
	return func(ctx context.Context, event Event) error {
		typedEvent, ok := event.(T)
		if !ok {
			var zero T
			return fmt.Errorf("invalid event type: expected %T, got %T", zero, event)
		}
		return handler(ctx, typedEvent)
	}
}
