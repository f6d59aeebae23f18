package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	kafkachannel "github.com/quantflow/quantflow/pkg/channels/kafka"
	"github.com/quantflow/quantflow/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. The
// memory provider is in-process only and suited to single-binary runs.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafkachannel.CreateChannel(wmLogger, "quantflow")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "memory", "":
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)

		return eventbus.NewWatermillEventBus(pubSub, pubSub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
