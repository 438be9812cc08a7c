package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

func TestGookitEventBus(t *testing.T) {
	t.Run("delivers typed events", func(t *testing.T) {
		bus := NewGookitEventBus("test", logger.NewNop())
		defer bus.Close()

		var got *ImportCompletedEvent
		_, err := bus.Subscribe(ImportCompleted, CreateTypedHandler(func(ctx context.Context, e *ImportCompletedEvent) error {
			got = e
			return nil
		}))
		require.NoError(t, err)

		ev := NewImportCompletedEvent("run-1", 3, 9, 2, 1, 0, 4)
		require.NoError(t, bus.Publish(context.Background(), ev))

		require.NotNil(t, got)
		assert.Equal(t, ev.ID(), got.ID())
		assert.Equal(t, int64(9), got.ImportLogID)
		assert.Equal(t, int64(3), got.Metadata()["lan_id"])
	})

	t.Run("unsubscribe removes only that handler", func(t *testing.T) {
		bus := NewGookitEventBus("test", logger.NewNop())
		defer bus.Close()

		var first, second int
		unsubFirst, err := bus.Subscribe(NotificationQueued, func(ctx context.Context, e Event) error {
			first++
			return nil
		})
		require.NoError(t, err)
		_, err = bus.Subscribe(NotificationQueued, func(ctx context.Context, e Event) error {
			second++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, bus.Health().Subscribers)

		require.NoError(t, bus.Publish(context.Background(), NewNotificationQueuedEvent(1, "email", "s", nil)))
		require.NoError(t, unsubFirst())
		require.NoError(t, bus.Publish(context.Background(), NewNotificationQueuedEvent(2, "email", "s", nil)))

		assert.Equal(t, 1, first)
		assert.Equal(t, 2, second)
		assert.Equal(t, 1, bus.Health().Subscribers)
	})

	t.Run("handler errors degrade health", func(t *testing.T) {
		bus := NewGookitEventBus("test", logger.NewNop())
		defer bus.Close()

		_, err := bus.Subscribe(RollbackCompleted, func(ctx context.Context, e Event) error {
			return errors.New("handler failed")
		})
		require.NoError(t, err)

		err = bus.Publish(context.Background(), NewRollbackCompletedEvent(1, 0, 0))
		require.Error(t, err)
		assert.Equal(t, "degraded", bus.Health().Status)
	})

	t.Run("closed bus rejects publish", func(t *testing.T) {
		bus := NewGookitEventBus("test", logger.NewNop())
		require.NoError(t, bus.Close())

		assert.Error(t, bus.Publish(context.Background(), NewRollbackCompletedEvent(1, 0, 0)))
		assert.Equal(t, "unhealthy", bus.Health().Status)
	})
}
