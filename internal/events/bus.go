package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Bus is an in-process publisher with channel fan-out. It carries events from
// the scheduler and submission path straight to the gateway in local
// single-process mode; multiplayer deployments use the NATS publisher
// instead.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	closed      bool
}

// NewBus creates an in-process event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish delivers the event to every subscriber. Slow subscribers drop
// events rather than block the publisher.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Int64("round_id", event.RoundID).
				Msg("event bus subscriber full, dropping event")
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel and returns it.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Close closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}
