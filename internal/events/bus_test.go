package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe(4)
	second := bus.Subscribe(4)

	event, err := NewEvent(1, EventTypeRoundCreated, RoundCreatedPayload{RoundID: 1})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event))

	got := <-first
	assert.Equal(t, event.ID, got.ID)
	got = <-second
	assert.Equal(t, event.ID, got.ID)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	for i := 0; i < 3; i++ {
		event, err := NewEvent(int64(i), EventTypeRoundCreated, RoundCreatedPayload{RoundID: int64(i)})
		require.NoError(t, err)
		// Never blocks, even with nobody draining.
		require.NoError(t, bus.Publish(context.Background(), event))
	}

	assert.Len(t, ch, 1)
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	bus.Close()
	_, ok := <-ch
	assert.False(t, ok)

	// Closing twice is safe.
	bus.Close()
}

func TestNewEventEnvelope(t *testing.T) {
	event, err := NewEvent(42, EventTypeRoundLocked, RoundLockedPayload{RoundID: 42})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, int64(42), event.RoundID)
	assert.Equal(t, EventTypeRoundLocked, event.Type)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotEmpty(t, event.Data)

	other, err := NewEvent(42, EventTypeRoundLocked, RoundLockedPayload{RoundID: 42})
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, other.ID)
}
