package models

import (
	"time"

	"github.com/google/uuid"
)

// PathPoint is one sample of a predicted trajectory. Progress is normalized
// to [0,1] over the round window.
type PathPoint struct {
	Progress float64 `json:"progress"`
	Value    float64 `json:"value"`
}

// Prediction represents one participant's forecast for a round. A participant
// holds at most one prediction per round; re-submitting before lock replaces
// the previous value. Accuracy and Rank are populated by the scoring engine
// when the round completes and are immutable afterwards.
type Prediction struct {
	RoundID       int64       `json:"round_id"`
	ParticipantID uuid.UUID   `json:"participant_id"`
	TargetValue   float64     `json:"target_value"`
	Path          []PathPoint `json:"path,omitempty"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	Accuracy      *float64    `json:"accuracy,omitempty"`
	Rank          *int        `json:"rank,omitempty"`

	// Display data attached on result reads, not stored on the prediction row.
	Nickname    string `json:"nickname,omitempty"`
	AvatarColor string `json:"avatar_color,omitempty"`
}
