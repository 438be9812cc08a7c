package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gookitEvent "github.com/gookit/event"

	"github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// gookitEventBus implements EventBus using gookit/event as the underlying implementation
type gookitEventBus struct {
	manager     *gookitEvent.Manager
	logger      *logger.Logger
	mu          sync.RWMutex
	subscribers int
	lastError   string
	closed      bool
}

// NewGookitEventBus creates a new event bus using gookit/event
func NewGookitEventBus(name string, log *logger.Logger) EventBus {
	return &gookitEventBus{
		manager: gookitEvent.NewManager(name),
		logger:  log.WithComponent("events"),
	}
}

// Publish publishes an event to the bus. Handlers run synchronously.
func (b *gookitEventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	b.mu.RUnlock()

	b.logger.WithContext(ctx).Debug("publishing event",
		slog.String("type", event.Type()),
		slog.String("id", event.ID()))

	err, _ := b.manager.Fire(event.Type(), gookitEvent.M{"payload": event, "ctx": ctx})
	if err != nil {
		b.mu.Lock()
		b.lastError = err.Error()
		b.mu.Unlock()

		b.logger.ErrorCtx(ctx, "failed to publish event", err,
			slog.String("type", event.Type()),
			slog.String("id", event.ID()))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe registers a handler for events of a specific type
func (b *gookitEventBus) Subscribe(eventType string, handler EventHandler) (UnsubscribeFunc, error) {
	return b.SubscribeWithPriority(eventType, handler, PriorityNormal)
}

// SubscribeWithPriority registers a handler with a specific priority
func (b *gookitEventBus) SubscribeWithPriority(eventType string, handler EventHandler, priority Priority) (UnsubscribeFunc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	gookitPriority := gookitEvent.Normal
	switch priority {
	case PriorityHigh:
		gookitPriority = gookitEvent.High
	case PriorityLow:
		gookitPriority = gookitEvent.Low
	}

	l := &listener{handler: handler}

	b.manager.On(eventType, l, gookitPriority)
	b.subscribers++

	var once sync.Once
	return func() error {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.manager.RemoveListener(eventType, l)
			b.subscribers--
		})
		return nil
	}, nil
}

// listener adapts an EventHandler to gookit. It is a pointer type so
// RemoveListener can tell subscriptions apart.
type listener struct {
	handler EventHandler
}

func (l *listener) Handle(e gookitEvent.Event) error {
	ourEvent, ok := e.Get("payload").(Event)
	if !ok {
		return fmt.Errorf("invalid event payload received: %T", e.Get("payload"))
	}
	ctx, ok := e.Get("ctx").(context.Context)
	if !ok {
		ctx = context.Background()
	}
	return l.handler(ctx, ourEvent)
}

// Close gracefully shuts down the event bus
func (b *gookitEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.manager.Clear()
	b.subscribers = 0
	b.closed = true
	return nil
}

// Health returns the health status of the event bus
func (b *gookitEventBus) Health() Health {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h := Health{
		Status:      "healthy",
		Message:     "event bus is operating normally",
		Subscribers: b.subscribers,
		LastError:   b.lastError,
	}
	switch {
	case b.closed:
		h.Status, h.Message = "unhealthy", "event bus is closed"
	case b.lastError != "":
		h.Status, h.Message = "degraded", "event bus has recent errors"
	}
	return h
}

// BaseEvent provides a common implementation of the Event interface
type BaseEvent struct {
	id        string
	eventType string
	timestamp time.Time
	metadata  map[string]any
}

// NewBaseEvent creates a new base event
func NewBaseEvent(eventType string, metadata map[string]any) BaseEvent {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return BaseEvent{
		id:        uuid.New().String(),
		eventType: eventType,
		timestamp: time.Now(),
		metadata:  metadata,
	}
}

func (e BaseEvent) Type() string             { return e.eventType }
func (e BaseEvent) Timestamp() time.Time     { return e.timestamp }
func (e BaseEvent) Metadata() map[string]any { return e.metadata }
func (e BaseEvent) ID() string               { return e.id }
