// Package participant owns participant identities. Participants are created
// lazily on first submission and referenced by predictions and leaderboard
// entries.
package participant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
)

// ErrNotFound indicates no participant exists for the given id.
var ErrNotFound = errors.New("participant not found")

// Repository is the durable record of participants.
type Repository interface {
	// EnsureParticipant creates the participant if absent and refreshes
	// nickname and avatar color if they changed. Returns the stored record.
	EnsureParticipant(ctx context.Context, p models.Participant) (*models.Participant, error)

	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
}
