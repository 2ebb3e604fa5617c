package round

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/predictoor/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScoreWriter struct {
	mu    sync.Mutex
	calls int
	last  []models.Prediction
}

func (w *recordingScoreWriter) ApplyScores(ctx context.Context, roundID int64, scored []models.Prediction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.last = scored
	return nil
}

func testRequest(id int64, start time.Time) CreateRoundRequest {
	return CreateRoundRequest{
		ID:        id,
		StartTime: start,
		LockTime:  start.Add(55 * time.Second),
		EndTime:   start.Add(60 * time.Second),
	}
}

func TestMemoryCreateRound(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rd, err := repo.CreateRound(context.Background(), testRequest(1, start))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rd.ID)
	assert.Equal(t, models.RoundStatusWaiting, rd.Status)
	assert.Nil(t, rd.OpenPrice)

	_, err = repo.CreateRound(context.Background(), testRequest(1, start))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryGetRoundNotFound(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})

	_, err := repo.GetRound(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTransitionStatus(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.CreateRound(context.Background(), testRequest(1, start))
	require.NoError(t, err)

	price := 100_000.0
	rd, err := repo.TransitionStatus(context.Background(), 1, models.RoundStatusWaiting, models.RoundStatusActive, &price)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusActive, rd.Status)
	require.NotNil(t, rd.OpenPrice)
	assert.Equal(t, price, *rd.OpenPrice)

	// Losing the race surfaces as a conflict, not as corruption.
	_, err = repo.TransitionStatus(context.Background(), 1, models.RoundStatusWaiting, models.RoundStatusActive, &price)
	assert.ErrorIs(t, err, ErrTransitionConflict)

	rd, err = repo.GetRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusActive, rd.Status)
}

func TestMemoryTransitionStatusUnknownRound(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})

	_, err := repo.TransitionStatus(context.Background(), 7, models.RoundStatusWaiting, models.RoundStatusActive, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCompleteRoundOnce(t *testing.T) {
	writer := &recordingScoreWriter{}
	repo := NewMemoryRepository(writer)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.CreateRound(context.Background(), testRequest(1, start))
	require.NoError(t, err)

	price := 100_000.0
	_, err = repo.TransitionStatus(context.Background(), 1, models.RoundStatusWaiting, models.RoundStatusActive, &price)
	require.NoError(t, err)
	_, err = repo.TransitionStatus(context.Background(), 1, models.RoundStatusActive, models.RoundStatusLocked, nil)
	require.NoError(t, err)

	acc := 95.0
	rank := 1
	scored := []models.Prediction{{RoundID: 1, Accuracy: &acc, Rank: &rank}}

	rd, err := repo.CompleteRound(context.Background(), 1, 101_000, scored)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, rd.Status)
	require.NotNil(t, rd.ClosePrice)
	assert.Equal(t, 101_000.0, *rd.ClosePrice)
	assert.Equal(t, 1, writer.calls)
	assert.Len(t, writer.last, 1)

	// A second completion loses the flip and never re-writes scores.
	_, err = repo.CompleteRound(context.Background(), 1, 102_000, scored)
	assert.ErrorIs(t, err, ErrTransitionConflict)
	assert.Equal(t, 1, writer.calls)
}

func TestMemoryCompleteRoundRequiresLocked(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.CreateRound(context.Background(), testRequest(1, start))
	require.NoError(t, err)

	_, err = repo.CompleteRound(context.Background(), 1, 100_000, nil)
	assert.ErrorIs(t, err, ErrTransitionConflict)
}

func TestMemoryGetCurrentRoundPicksEarliestOpen(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.CreateRound(context.Background(), testRequest(2, base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = repo.CreateRound(context.Background(), testRequest(1, base))
	require.NoError(t, err)

	rd, err := repo.GetCurrentRound(context.Background(), base.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rd.ID)

	// Past the first round's end only the later one remains.
	rd, err = repo.GetCurrentRound(context.Background(), base.Add(61*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rd.ID)
}

func TestMemoryGetCurrentRoundNoneOpen(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.GetCurrentRound(context.Background(), base)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDueListsFollowStatus(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.CreateRound(context.Background(), testRequest(1, base))
	require.NoError(t, err)

	due, err := repo.ListDueForActivation(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = repo.ListDueForLock(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	price := 100_000.0
	_, err = repo.TransitionStatus(context.Background(), 1, models.RoundStatusWaiting, models.RoundStatusActive, &price)
	require.NoError(t, err)

	due, err = repo.ListDueForLock(context.Background(), base.Add(55*time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = repo.ListDueForCompletion(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMemoryHasOpenRound(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	open, err := repo.HasOpenRound(context.Background(), base)
	require.NoError(t, err)
	assert.False(t, open)

	_, err = repo.CreateRound(context.Background(), testRequest(1, base))
	require.NoError(t, err)

	open, err = repo.HasOpenRound(context.Background(), base)
	require.NoError(t, err)
	assert.True(t, open)

	// An expired round no longer counts as open.
	open, err = repo.HasOpenRound(context.Background(), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestMemoryCreateRoundIfNoneOpen(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rd, err := repo.CreateRoundIfNoneOpen(context.Background(), base, testRequest(1, base))
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusWaiting, rd.Status)

	// A waiting round with a future end time blocks further creation, even
	// for a different id.
	_, err = repo.CreateRoundIfNoneOpen(context.Background(), base, testRequest(2, base.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Once the open round expires, the next boundary's round goes through.
	later := base.Add(2 * time.Minute)
	next, err := repo.CreateRoundIfNoneOpen(context.Background(), later, testRequest(3, later))
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.ID)
}

func TestMemoryCreateRoundIfNoneOpenConcurrent(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Racers straddling a boundary compute different ids; exactly one round
	// may be created.
	var created int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testRequest(int64(i), base.Add(time.Duration(i)*time.Minute))
			if _, err := repo.CreateRoundIfNoneOpen(context.Background(), base, req); err == nil {
				atomic.AddInt64(&created, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), created)
}

func TestMemoryWithRoundExcludesTransitions(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.CreateRound(context.Background(), testRequest(1, start))
	require.NoError(t, err)
	price := 100_000.0
	_, err = repo.TransitionStatus(context.Background(), 1, models.RoundStatusWaiting, models.RoundStatusActive, &price)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	guarded := make(chan models.RoundStatus, 1)
	go func() {
		repo.WithRound(context.Background(), 1, func(rd models.Round) error {
			close(entered)
			<-release
			guarded <- rd.Status
			return nil
		})
	}()
	<-entered

	transitioned := make(chan struct{})
	go func() {
		_, err := repo.TransitionStatus(context.Background(), 1, models.RoundStatusActive, models.RoundStatusLocked, nil)
		assert.NoError(t, err)
		close(transitioned)
	}()

	// The lock transition must wait for the guarded callback to finish.
	select {
	case <-transitioned:
		t.Fatal("status transition ran inside the guarded section")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-transitioned
	assert.Equal(t, models.RoundStatusActive, <-guarded)

	rd, err := repo.GetRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusLocked, rd.Status)
}

func TestMemoryWithRoundUnknownRound(t *testing.T) {
	repo := NewMemoryRepository(&recordingScoreWriter{})

	err := repo.WithRound(context.Background(), 42, func(models.Round) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}
