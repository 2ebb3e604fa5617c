// Package prediction owns prediction records and the submission gate that
// keeps writes inside the round's active window.
package prediction

import (
	"context"
	"time"

	"github.com/predictoor/server/internal/models"
)

// Repository is the durable record of predictions, keyed by
// (round_id, participant_id).
type Repository interface {
	// UpsertBeforeLock stores the prediction, overwriting any prior value
	// for the same (round, participant) pair. The round's live status and
	// lock time are re-checked at write time; a submission at or after the
	// lock boundary fails with ErrRoundNotActive even when the caller read
	// an active round moments earlier.
	UpsertBeforeLock(ctx context.Context, pred models.Prediction, now time.Time) (*models.Prediction, error)

	// ListByRound returns all predictions for a round, unordered and
	// without display data. The scoring engine consumes this.
	ListByRound(ctx context.Context, roundID int64) ([]models.Prediction, error)

	// ListRanked returns up to limit predictions for a round ordered by
	// rank (unranked ones by submission time), with display data attached.
	ListRanked(ctx context.Context, roundID int64, limit int) ([]models.Prediction, error)

	// CountByRound returns the number of predictions for a round.
	CountByRound(ctx context.Context, roundID int64) (int, error)
}
