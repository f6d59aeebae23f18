// Package eventbus provides the publish/subscribe boundary between the engine
// and its observers. Consumers such as the dashboard subscribe here; the
// engine never holds observer callbacks itself.
package eventbus

import (
	"context"

	"github.com/quantflow/quantflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
