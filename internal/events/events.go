// Package events defines the change events the engine publishes and the
// transports that carry them: an in-process bus for local mode and NATS
// JetStream for multiplayer deployments. Delivery is at-least-once; consumers
// deduplicate by event id.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of round event.
type EventType string

const (
	EventTypeRoundCreated        EventType = "RoundCreated"
	EventTypeRoundActivated      EventType = "RoundActivated"
	EventTypeRoundLocked         EventType = "RoundLocked"
	EventTypeRoundCompleted      EventType = "RoundCompleted"
	EventTypePredictionSubmitted EventType = "PredictionSubmitted"
)

// Event is the envelope for all round events.
type Event struct {
	ID        string          `json:"id"`
	RoundID   int64           `json:"round_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent builds an envelope around a marshaled payload.
func NewEvent(roundID int64, eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		RoundID:   roundID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Publisher fans events out to whatever transport backs the deployment.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
