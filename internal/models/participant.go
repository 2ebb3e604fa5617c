package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant represents a player identified by a stable opaque token.
// Participants are created lazily on first submission.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	Nickname    string    `json:"nickname"`
	AvatarColor string    `json:"avatar_color"`
	CreatedAt   time.Time `json:"created_at"`
}
