package models

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry holds rolling per-participant statistics derived from
// completed rounds. AverageAccuracy is a running mean, never recomputed from
// full history.
type LeaderboardEntry struct {
	ParticipantID    uuid.UUID `json:"participant_id"`
	Nickname         string    `json:"nickname"`
	AvatarColor      string    `json:"avatar_color"`
	TotalPredictions int       `json:"total_predictions"`
	AverageAccuracy  float64   `json:"average_accuracy"`
	LastRoundID      int64     `json:"last_round_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}
