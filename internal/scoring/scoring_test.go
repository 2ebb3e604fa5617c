package scoring

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pred(id uuid.UUID, target float64, submittedAt time.Time) models.Prediction {
	return models.Prediction{
		RoundID:       1,
		ParticipantID: id,
		TargetValue:   target,
		SubmittedAt:   submittedAt,
	}
}

func TestScoreRanksByAccuracyThenSubmissionTime(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	// a and c both hit the close exactly; a submitted first. b misses by 20%,
	// which zeroes out at the default sensitivity.
	input := []models.Prediction{
		pred(b, 80_000, base.Add(1*time.Second)),
		pred(c, 100_000, base.Add(5*time.Second)),
		pred(a, 100_000, base),
	}

	scored := NewEngine().Score(input, 100_000)
	require.Len(t, scored, 3)

	assert.Equal(t, a, scored[0].ParticipantID)
	assert.Equal(t, c, scored[1].ParticipantID)
	assert.Equal(t, b, scored[2].ParticipantID)

	assert.InDelta(t, 100, *scored[0].Accuracy, 1e-9)
	assert.InDelta(t, 100, *scored[1].Accuracy, 1e-9)
	assert.InDelta(t, 0, *scored[2].Accuracy, 1e-9)

	assert.Equal(t, 1, *scored[0].Rank)
	assert.Equal(t, 2, *scored[1].Rank)
	assert.Equal(t, 3, *scored[2].Rank)
}

func TestScoreAccuracyScale(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine()

	tests := []struct {
		name   string
		target float64
		close  float64
		want   float64
	}{
		{"exact", 50_000, 50_000, 100},
		{"one percent off", 50_500, 50_000, 90},
		{"five percent off", 52_500, 50_000, 50},
		{"ten percent off", 55_000, 50_000, 0},
		{"way off clamps to zero", 100_000, 50_000, 0},
		{"undershoot", 49_500, 50_000, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scored := e.Score([]models.Prediction{pred(uuid.New(), tt.target, base)}, tt.close)
			require.Len(t, scored, 1)
			assert.InDelta(t, tt.want, *scored[0].Accuracy, 1e-9)
		})
	}
}

func TestScoreSensitivityOption(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine(WithSensitivity(5))

	// 10% miss at sensitivity 5 keeps half the score.
	scored := e.Score([]models.Prediction{pred(uuid.New(), 55_000, base)}, 50_000)
	require.Len(t, scored, 1)
	assert.InDelta(t, 50, *scored[0].Accuracy, 1e-9)
}

func TestScoreInputOrderIndependent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	preds := []models.Prediction{
		pred(ids[0], 99_000, base.Add(2*time.Second)),
		pred(ids[1], 101_000, base.Add(3*time.Second)),
		pred(ids[2], 100_000, base.Add(1*time.Second)),
		pred(ids[3], 97_000, base),
	}
	reversed := make([]models.Prediction, len(preds))
	for i, p := range preds {
		reversed[len(preds)-1-i] = p
	}

	e := NewEngine()
	first := e.Score(preds, 100_000)
	second := e.Score(reversed, 100_000)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ParticipantID, second[i].ParticipantID)
		assert.Equal(t, *first[i].Accuracy, *second[i].Accuracy)
		assert.Equal(t, *first[i].Rank, *second[i].Rank)
	}
}

func TestScoreDeterministic(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	preds := []models.Prediction{
		pred(uuid.New(), 100_500, base),
		pred(uuid.New(), 99_500, base.Add(time.Second)),
	}

	e := NewEngine()
	first := e.Score(preds, 100_000)
	second := e.Score(preds, 100_000)

	for i := range first {
		assert.Equal(t, *first[i].Accuracy, *second[i].Accuracy)
		assert.Equal(t, *first[i].Rank, *second[i].Rank)
	}
}

func TestScoreDoesNotMutateInput(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	input := []models.Prediction{pred(uuid.New(), 100_000, base)}

	NewEngine().Score(input, 100_000)

	assert.Nil(t, input[0].Accuracy)
	assert.Nil(t, input[0].Rank)
}

func TestScoreEmpty(t *testing.T) {
	scored := NewEngine().Score(nil, 100_000)
	assert.Empty(t, scored)
}

func TestScoreTrajectoryUsesFinalPathValue(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := pred(uuid.New(), 90_000, base)
	p.Path = []models.PathPoint{
		{Progress: 0, Value: 100_000},
		{Progress: 0.5, Value: 110_000},
		{Progress: 1, Value: 120_000},
	}

	// The path endpoint, not the target value, is the forecast.
	scored := NewEngine().Score([]models.Prediction{p}, 120_000)
	require.Len(t, scored, 1)
	assert.InDelta(t, 100, *scored[0].Accuracy, 1e-9)
}

func TestValueAtProgress(t *testing.T) {
	path := []models.PathPoint{
		{Progress: 0, Value: 100},
		{Progress: 0.5, Value: 110},
		{Progress: 1, Value: 120},
	}

	assert.InDelta(t, 105, ValueAtProgress(path, 0.25), 1e-9)
	assert.InDelta(t, 110, ValueAtProgress(path, 0.5), 1e-9)
	assert.InDelta(t, 115, ValueAtProgress(path, 0.75), 1e-9)
	assert.InDelta(t, 100, ValueAtProgress(path, -0.5), 1e-9)
	assert.InDelta(t, 120, ValueAtProgress(path, 1.5), 1e-9)
}

func TestValueAtProgressEmptyPath(t *testing.T) {
	assert.Zero(t, ValueAtProgress(nil, 0.5))
	assert.Zero(t, ValueAtProgress([]models.PathPoint{}, 1))
}

func TestValueAtProgressUnsortedInput(t *testing.T) {
	path := []models.PathPoint{
		{Progress: 1, Value: 120},
		{Progress: 0, Value: 100},
		{Progress: 0.5, Value: 110},
	}

	assert.InDelta(t, 105, ValueAtProgress(path, 0.25), 1e-9)
	assert.InDelta(t, 120, ValueAtProgress(path, 1), 1e-9)
}
