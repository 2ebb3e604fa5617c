package gateway

import (
	"context"

	"github.com/predictoor/server/internal/events"
	"github.com/rs/zerolog/log"
)

// BusConsumer bridges the in-process event bus to the connection manager.
// Local single-process deployments use it in place of the NATS consumer.
type BusConsumer struct {
	dispatcher *dispatcher
	bus        *events.Bus
}

// NewBusConsumer creates a consumer over the in-process bus.
func NewBusConsumer(cm *ConnectionManager, bus *events.Bus) *BusConsumer {
	return &BusConsumer{
		dispatcher: newDispatcher(cm),
		bus:        bus,
	}
}

// Start consumes events until the context is cancelled or the bus closes.
func (c *BusConsumer) Start(ctx context.Context) error {
	ch := c.bus.Subscribe(256)
	log.Info().Msg("bus consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				log.Info().Msg("event bus closed, bus consumer stopping")
				return nil
			}
			c.dispatcher.dispatch(event)
		}
	}
}

// Stop is a no-op; the bus owns channel lifecycle.
func (c *BusConsumer) Stop() error { return nil }
