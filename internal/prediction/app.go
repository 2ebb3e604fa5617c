package prediction

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/predictoor/server/internal/events"
	"github.com/predictoor/server/internal/models"
	"github.com/predictoor/server/internal/participant"
	"github.com/rs/zerolog/log"
)

const minNicknameLen = 2

// SubmitRequest carries one forecast submission.
type SubmitRequest struct {
	RoundID       int64              `json:"round_id"`
	ParticipantID uuid.UUID          `json:"participant_id"`
	Nickname      string             `json:"nickname"`
	AvatarColor   string             `json:"avatar_color"`
	TargetValue   float64            `json:"target_value"`
	Path          []models.PathPoint `json:"path,omitempty"`
}

// App handles prediction business logic: validation, lazy participant
// creation, the lock-gated upsert and the ghost broadcast.
type App struct {
	repo         Repository
	participants participant.Repository
	publisher    events.Publisher
	clock        clockwork.Clock
}

// NewApp creates a prediction App.
func NewApp(repo Repository, participants participant.Repository, publisher events.Publisher, clock clockwork.Clock) *App {
	return &App{
		repo:         repo,
		participants: participants,
		publisher:    publisher,
		clock:        clock,
	}
}

// Submit validates and stores a forecast for the given round. Re-submissions
// before the lock boundary replace the prior value; at or after it the
// submission fails with ErrRoundNotActive. On success the prediction is
// published for ghost-line broadcast to the other participants.
func (a *App) Submit(ctx context.Context, req SubmitRequest) (*models.Prediction, error) {
	if err := validateSubmitRequest(req); err != nil {
		return nil, err
	}

	stored, err := a.participants.EnsureParticipant(ctx, models.Participant{
		ID:          req.ParticipantID,
		Nickname:    req.Nickname,
		AvatarColor: req.AvatarColor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure participant: %w", err)
	}

	pred, err := a.repo.UpsertBeforeLock(ctx, models.Prediction{
		RoundID:       req.RoundID,
		ParticipantID: req.ParticipantID,
		TargetValue:   req.TargetValue,
		Path:          req.Path,
		SubmittedAt:   a.clock.Now().UTC(),
	}, a.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	pred.Nickname = stored.Nickname
	pred.AvatarColor = stored.AvatarColor

	a.publishGhost(ctx, pred)
	return pred, nil
}

func (a *App) publishGhost(ctx context.Context, pred *models.Prediction) {
	event, err := events.NewEvent(pred.RoundID, events.EventTypePredictionSubmitted, events.PredictionSubmittedPayload{
		RoundID:       pred.RoundID,
		ParticipantID: pred.ParticipantID.String(),
		Nickname:      pred.Nickname,
		AvatarColor:   pred.AvatarColor,
		TargetValue:   pred.TargetValue,
		Path:          pred.Path,
		SubmittedAt:   pred.SubmittedAt,
	})
	if err == nil {
		err = a.publisher.Publish(ctx, event)
	}
	if err != nil {
		// Broadcast is fire-and-forget; the stored prediction stands.
		log.Error().Err(err).
			Int64("round_id", pred.RoundID).
			Str("participant_id", pred.ParticipantID.String()).
			Msg("failed to publish prediction event")
	}
}

func validateSubmitRequest(req SubmitRequest) error {
	if req.ParticipantID == uuid.Nil {
		return fmt.Errorf("%w: participant id required", ErrInvalidValue)
	}
	if req.Nickname != "" && len(req.Nickname) < minNicknameLen {
		return fmt.Errorf("%w: nickname too short", ErrInvalidValue)
	}
	if !isFinitePositive(req.TargetValue) {
		return fmt.Errorf("%w: target value must be a positive finite number", ErrInvalidValue)
	}
	for _, pt := range req.Path {
		if pt.Progress < 0 || pt.Progress > 1 || math.IsNaN(pt.Progress) {
			return fmt.Errorf("%w: path progress outside [0,1]", ErrInvalidValue)
		}
		if !isFinitePositive(pt.Value) {
			return fmt.Errorf("%w: path value must be a positive finite number", ErrInvalidValue)
		}
	}
	return nil
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
