// Package leaderboard maintains rolling per-participant statistics over
// completed rounds.
package leaderboard

import (
	"context"

	"github.com/predictoor/server/internal/models"
)

// Repository is the durable record of leaderboard entries.
type Repository interface {
	// ApplyResult folds one scored prediction into the participant's
	// running mean. Round ids increase monotonically, so an entry whose
	// last applied round is not older than roundID is left untouched; this
	// makes double application of the same round a no-op.
	ApplyResult(ctx context.Context, roundID int64, result models.Prediction) error

	// Top returns up to n entries ordered by average accuracy descending,
	// ties broken by total predictions descending.
	Top(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
}
