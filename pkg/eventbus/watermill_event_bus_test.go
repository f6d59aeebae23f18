package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/events"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	return NewWatermillEventBus(pubSub, pubSub)
}

func TestWatermillEventBusRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan *events.StepCompleted, 1)

	err := bus.Handle(events.StepCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.StepCompleted)
		if ok {
			received <- completed
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	sent := events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, "exec-1"),
		StepID:     "backtest",
		DurationMs: 120,
		Metrics:    map[string]float64{"sharpe": 1.8},
	}
	require.NoError(t, bus.Publish(ctx, "exec-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "backtest", got.StepID)
		assert.InDelta(t, 1.8, got.Metrics["sharpe"], 0.0001)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	received := make(chan any, 1)

	err := bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for step events; they must be acked and dropped.
	require.NoError(t, bus.Publish(ctx, "exec-1", events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, "exec-1"),
		StepID:    "analysis",
	}))
	require.NoError(t, bus.Publish(ctx, "exec-1", events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, "exec-1"),
		StepsExecuted: 3,
	}))

	select {
	case got := <-received:
		completed, ok := got.(*events.ExecutionCompleted)
		require.True(t, ok)
		assert.Equal(t, 3, completed.StepsExecuted)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
