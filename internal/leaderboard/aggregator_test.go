package leaderboard

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
	"github.com/predictoor/server/internal/participant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(id uuid.UUID, accuracy float64) models.Prediction {
	return models.Prediction{ParticipantID: id, Accuracy: &accuracy}
}

func newTestAggregator(t *testing.T) (*Aggregator, participant.Repository) {
	t.Helper()
	participants := participant.NewMemoryRepository()
	return NewAggregator(NewMemoryRepository(participants)), participants
}

func TestApplyRoundResultsRunningMean(t *testing.T) {
	agg, _ := newTestAggregator(t)
	id := uuid.New()

	require.NoError(t, agg.ApplyRoundResults(context.Background(), 1, []models.Prediction{result(id, 100)}))
	require.NoError(t, agg.ApplyRoundResults(context.Background(), 2, []models.Prediction{result(id, 60)}))

	top, err := agg.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 2, top[0].TotalPredictions)
	assert.InDelta(t, 80, top[0].AverageAccuracy, 1e-9)
	assert.Equal(t, int64(2), top[0].LastRoundID)
}

func TestRunningMeanConvergence(t *testing.T) {
	agg, _ := newTestAggregator(t)
	id := uuid.New()

	// A participant who always scores 80 must sit at exactly 80, with no
	// drift from the incremental mean.
	for roundID := int64(1); roundID <= 50; roundID++ {
		require.NoError(t, agg.ApplyRoundResults(context.Background(), roundID, []models.Prediction{result(id, 80)}))
	}

	top, err := agg.Top(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.InDelta(t, 80, top[0].AverageAccuracy, 1e-9)
	assert.Equal(t, 50, top[0].TotalPredictions)
}

func TestApplyRoundResultsIdempotent(t *testing.T) {
	agg, _ := newTestAggregator(t)
	id := uuid.New()

	require.NoError(t, agg.ApplyRoundResults(context.Background(), 1, []models.Prediction{result(id, 90)}))

	// Re-delivery of the same round changes nothing.
	require.NoError(t, agg.ApplyRoundResults(context.Background(), 1, []models.Prediction{result(id, 90)}))

	top, err := agg.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 1, top[0].TotalPredictions)
	assert.InDelta(t, 90, top[0].AverageAccuracy, 1e-9)
}

func TestApplyRoundResultsIgnoresStaleRound(t *testing.T) {
	agg, _ := newTestAggregator(t)
	id := uuid.New()

	require.NoError(t, agg.ApplyRoundResults(context.Background(), 5, []models.Prediction{result(id, 90)}))
	require.NoError(t, agg.ApplyRoundResults(context.Background(), 3, []models.Prediction{result(id, 10)}))

	top, err := agg.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 1, top[0].TotalPredictions)
	assert.InDelta(t, 90, top[0].AverageAccuracy, 1e-9)
}

func TestApplyRoundResultsSkipsUnscored(t *testing.T) {
	agg, _ := newTestAggregator(t)

	require.NoError(t, agg.ApplyRoundResults(context.Background(), 1, []models.Prediction{
		{ParticipantID: uuid.New()},
	}))

	top, err := agg.Top(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestTopOrdering(t *testing.T) {
	agg, participants := newTestAggregator(t)

	high := uuid.New()
	veteran := uuid.New()
	rookie := uuid.New()
	_, err := participants.EnsureParticipant(context.Background(), models.Participant{ID: high, Nickname: "high"})
	require.NoError(t, err)
	_, err = participants.EnsureParticipant(context.Background(), models.Participant{ID: veteran, Nickname: "veteran"})
	require.NoError(t, err)
	_, err = participants.EnsureParticipant(context.Background(), models.Participant{ID: rookie, Nickname: "rookie"})
	require.NoError(t, err)

	// veteran and rookie tie on average; veteran has more rounds behind it.
	require.NoError(t, agg.ApplyRoundResults(context.Background(), 1, []models.Prediction{
		result(high, 95), result(veteran, 70), result(rookie, 70),
	}))
	require.NoError(t, agg.ApplyRoundResults(context.Background(), 2, []models.Prediction{
		result(veteran, 70),
	}))

	top, err := agg.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "high", top[0].Nickname)
	assert.Equal(t, "veteran", top[1].Nickname)
	assert.Equal(t, "rookie", top[2].Nickname)
}

func TestTopLimit(t *testing.T) {
	agg, _ := newTestAggregator(t)

	for i := 0; i < 15; i++ {
		require.NoError(t, agg.ApplyRoundResults(context.Background(), 1, []models.Prediction{
			result(uuid.New(), float64(i)),
		}))
	}

	top, err := agg.Top(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, top, 5)

	// Non-positive limits fall back to the default.
	top, err = agg.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, top, DefaultTopLimit)
}
