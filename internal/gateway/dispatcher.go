package gateway

import (
	"encoding/json"
	"sync"

	"github.com/predictoor/server/internal/events"
	"github.com/rs/zerolog/log"
)

// dedupeWindow bounds how many recent event ids a dispatcher remembers.
// Transports deliver at-least-once; duplicates inside the window are dropped.
const dedupeWindow = 1024

// dispatcher routes consumed events to the connection manager, deduplicating
// by event id and deriving the ghost exclusion from the payload.
type dispatcher struct {
	connectionManager *ConnectionManager

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func newDispatcher(cm *ConnectionManager) *dispatcher {
	return &dispatcher{
		connectionManager: cm,
		seen:              make(map[string]struct{}, dedupeWindow),
	}
}

func (d *dispatcher) dispatch(event events.Event) {
	if d.duplicate(event.ID) {
		log.Debug().Str("event_id", event.ID).Msg("dropping duplicate event")
		return
	}

	exclude := ""
	if event.Type == events.EventTypePredictionSubmitted {
		var payload events.PredictionSubmittedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("failed to parse prediction payload")
			return
		}
		exclude = payload.ParticipantID
	}

	d.connectionManager.Broadcast(event, exclude)
}

func (d *dispatcher) duplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > dedupeWindow {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return false
}
