package models

import (
	"time"
)

// RoundStatus defines the lifecycle status of a round.
type RoundStatus string

const (
	RoundStatusWaiting   RoundStatus = "waiting"
	RoundStatusActive    RoundStatus = "active"
	RoundStatusLocked    RoundStatus = "locked"
	RoundStatusCompleted RoundStatus = "completed"
)

// NextStatus returns the only legal successor of a status, or "" for a
// terminal status. Transitions are strictly waiting -> active -> locked ->
// completed; nothing skips and nothing regresses.
func (s RoundStatus) NextStatus() RoundStatus {
	switch s {
	case RoundStatusWaiting:
		return RoundStatusActive
	case RoundStatusActive:
		return RoundStatusLocked
	case RoundStatusLocked:
		return RoundStatusCompleted
	default:
		return ""
	}
}

// Open reports whether the round still owns the game window, i.e. it has not
// been scored yet. At most one open round with a future end time may exist.
func (s RoundStatus) Open() bool {
	return s == RoundStatusWaiting || s == RoundStatusActive || s == RoundStatusLocked
}

// Round represents one timed prediction cycle. The id is derived from the
// start-time bucket (unix start / duration), which keeps ids monotonic and
// makes round creation naturally collision-guarded.
type Round struct {
	ID         int64       `json:"id"`
	StartTime  time.Time   `json:"start_time"`
	LockTime   time.Time   `json:"lock_time"`
	EndTime    time.Time   `json:"end_time"`
	Status     RoundStatus `json:"status"`
	OpenPrice  *float64    `json:"open_price,omitempty"`
	ClosePrice *float64    `json:"close_price,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AcceptsPredictions reports whether a submission at now would be accepted.
// The lock boundary is strict: a submission at exactly lock_time is rejected.
func (r *Round) AcceptsPredictions(now time.Time) bool {
	return r.Status == RoundStatusActive && now.Before(r.LockTime)
}
