package leaderboard

import (
	"context"
	"fmt"

	"github.com/predictoor/server/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultTopLimit is the number of entries served when no limit is given.
const DefaultTopLimit = 10

// Aggregator folds scored rounds into the leaderboard and serves rankings.
type Aggregator struct {
	repo Repository
}

// NewAggregator creates a leaderboard aggregator.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// ApplyRoundResults folds a completed round's scored predictions into the
// participants' running means. Safe to call more than once for the same
// round: the repository skips participants that already absorbed it.
func (a *Aggregator) ApplyRoundResults(ctx context.Context, roundID int64, results []models.Prediction) error {
	for _, result := range results {
		if err := a.repo.ApplyResult(ctx, roundID, result); err != nil {
			return fmt.Errorf("failed to apply result for participant %s: %w", result.ParticipantID, err)
		}
	}

	log.Debug().
		Int64("round_id", roundID).
		Int("results", len(results)).
		Msg("leaderboard updated")
	return nil
}

// Top returns the best participants by average accuracy. A non-positive
// limit falls back to the default.
func (a *Aggregator) Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	return a.repo.Top(ctx, limit)
}
