package round

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/predictoor/server/internal/models"
)

// Results caps the ranked predictions returned for a completed round.
const resultsLimit = 20

// ResultsReader is what the round app needs from the prediction store to
// assemble round results.
type ResultsReader interface {
	ListRanked(ctx context.Context, roundID int64, limit int) ([]models.Prediction, error)
	CountByRound(ctx context.Context, roundID int64) (int, error)
}

// App exposes the round query surface.
type App struct {
	repo        Repository
	predictions ResultsReader
	clock       clockwork.Clock
}

// NewApp creates a round App.
func NewApp(repo Repository, predictions ResultsReader, clock clockwork.Clock) *App {
	return &App{
		repo:        repo,
		predictions: predictions,
		clock:       clock,
	}
}

// GetCurrentRound returns the round whose window contains now, or the nearest
// upcoming one, together with its player count.
func (a *App) GetCurrentRound(ctx context.Context) (*models.Round, int, error) {
	rd, err := a.repo.GetCurrentRound(ctx, a.clock.Now())
	if err != nil {
		return nil, 0, err
	}

	count, err := a.predictions.CountByRound(ctx, rd.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return rd, count, nil
}

// GetRound returns a round by id.
func (a *App) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	return a.repo.GetRound(ctx, id)
}

// GetResults returns a round with its ranked predictions, display data
// attached. For rounds that are not completed yet the prediction list holds
// whatever has been submitted so far, unranked.
func (a *App) GetResults(ctx context.Context, id int64) (*models.Round, []models.Prediction, error) {
	rd, err := a.repo.GetRound(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	preds, err := a.predictions.ListRanked(ctx, id, resultsLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	return rd, preds, nil
}
