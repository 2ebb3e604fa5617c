package events

import (
	"time"

	"github.com/predictoor/server/internal/models"
)

// RoundCreatedPayload is the payload for a RoundCreated event.
type RoundCreatedPayload struct {
	RoundID   int64     `json:"round_id"`
	StartTime time.Time `json:"start_time"`
	LockTime  time.Time `json:"lock_time"`
	EndTime   time.Time `json:"end_time"`
}

// RoundActivatedPayload is the payload for a RoundActivated event.
type RoundActivatedPayload struct {
	RoundID     int64     `json:"round_id"`
	OpenPrice   float64   `json:"open_price"`
	ActivatedAt time.Time `json:"activated_at"`
	LockTime    time.Time `json:"lock_time"`
	EndTime     time.Time `json:"end_time"`
}

// RoundLockedPayload is the payload for a RoundLocked event.
type RoundLockedPayload struct {
	RoundID  int64     `json:"round_id"`
	LockedAt time.Time `json:"locked_at"`
	EndTime  time.Time `json:"end_time"`
}

// RoundCompletedPayload is the payload for a RoundCompleted event.
type RoundCompletedPayload struct {
	RoundID          int64     `json:"round_id"`
	ClosePrice       float64   `json:"close_price"`
	CompletedAt      time.Time `json:"completed_at"`
	TotalPredictions int       `json:"total_predictions"`
}

// PredictionSubmittedPayload is the payload for a PredictionSubmitted event.
// The gateway broadcasts it as a ghost line to every connected participant
// except the submitter.
type PredictionSubmittedPayload struct {
	RoundID       int64              `json:"round_id"`
	ParticipantID string             `json:"participant_id"`
	Nickname      string             `json:"nickname"`
	AvatarColor   string             `json:"avatar_color"`
	TargetValue   float64            `json:"target_value"`
	Path          []models.PathPoint `json:"path,omitempty"`
	SubmittedAt   time.Time          `json:"submitted_at"`
}
