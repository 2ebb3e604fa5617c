package round

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/predictoor/server/internal/models"
)

// ScoreWriter persists scored predictions for a completed round. The
// in-memory prediction repository implements it; the Postgres round store
// writes scores inside its own transaction instead.
type ScoreWriter interface {
	ApplyScores(ctx context.Context, roundID int64, scored []models.Prediction) error
}

// MemoryRepository is an in-memory round store guarding transitions with a
// single mutex, which gives it the same CAS semantics as the Postgres
// conditional updates. It backs local single-process deployments and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	rounds map[int64]models.Round
	scores ScoreWriter
}

// NewMemoryRepository creates an empty in-memory round store. The score
// writer receives ranked predictions when a round completes.
func NewMemoryRepository(scores ScoreWriter) *MemoryRepository {
	return &MemoryRepository{
		rounds: make(map[int64]models.Round),
		scores: scores,
	}
}

func (r *MemoryRepository) CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.createLocked(req)
}

// CreateRoundIfNoneOpen holds the mutex across the open-round scan and the
// insert, so two replenishers straddling a boundary serialize here and the
// loser sees the winner's round.
func (r *MemoryRepository) CreateRoundIfNoneOpen(ctx context.Context, now time.Time, req CreateRoundRequest) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.rounds {
		rd := r.rounds[id]
		if rd.Status.Open() && rd.EndTime.After(now) {
			return nil, ErrAlreadyExists
		}
	}
	return r.createLocked(req)
}

func (r *MemoryRepository) createLocked(req CreateRoundRequest) (*models.Round, error) {
	if _, ok := r.rounds[req.ID]; ok {
		return nil, ErrAlreadyExists
	}

	now := time.Now().UTC()
	rd := models.Round{
		ID:        req.ID,
		StartTime: req.StartTime,
		LockTime:  req.LockTime,
		EndTime:   req.EndTime,
		Status:    models.RoundStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.rounds[req.ID] = rd
	return &rd, nil
}

// WithRound runs fn with the round's current record while holding the store
// mutex, so no status transition can land until fn returns. fn must not call
// back into this repository.
func (r *MemoryRepository) WithRound(ctx context.Context, id int64, fn func(models.Round) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.rounds[id]
	if !ok {
		return ErrNotFound
	}
	return fn(rd)
}

func (r *MemoryRepository) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rd, nil
}

func (r *MemoryRepository) GetCurrentRound(ctx context.Context, now time.Time) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current *models.Round
	for id := range r.rounds {
		rd := r.rounds[id]
		if !rd.Status.Open() || !rd.EndTime.After(now) {
			continue
		}
		if current == nil || rd.StartTime.Before(current.StartTime) {
			c := rd
			current = &c
		}
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return current, nil
}

func (r *MemoryRepository) ListDueForActivation(ctx context.Context, now time.Time) ([]models.Round, error) {
	return r.list(func(rd models.Round) bool {
		return rd.Status == models.RoundStatusWaiting && !rd.StartTime.After(now)
	})
}

func (r *MemoryRepository) ListDueForLock(ctx context.Context, now time.Time) ([]models.Round, error) {
	return r.list(func(rd models.Round) bool {
		return rd.Status == models.RoundStatusActive && !rd.LockTime.After(now)
	})
}

func (r *MemoryRepository) ListDueForCompletion(ctx context.Context, now time.Time) ([]models.Round, error) {
	return r.list(func(rd models.Round) bool {
		return rd.Status == models.RoundStatusLocked && !rd.EndTime.After(now)
	})
}

func (r *MemoryRepository) HasOpenRound(ctx context.Context, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.rounds {
		rd := r.rounds[id]
		if rd.Status.Open() && rd.EndTime.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) TransitionStatus(ctx context.Context, id int64, from, to models.RoundStatus, openPrice *float64) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd, ok := r.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rd.Status != from {
		return nil, ErrTransitionConflict
	}

	rd.Status = to
	if openPrice != nil {
		p := *openPrice
		rd.OpenPrice = &p
	}
	rd.UpdatedAt = time.Now().UTC()
	r.rounds[id] = rd
	return &rd, nil
}

func (r *MemoryRepository) CompleteRound(ctx context.Context, id int64, closePrice float64, scored []models.Prediction) (*models.Round, error) {
	r.mu.Lock()

	rd, ok := r.rounds[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if rd.Status != models.RoundStatusLocked {
		r.mu.Unlock()
		return nil, ErrTransitionConflict
	}

	rd.Status = models.RoundStatusCompleted
	cp := closePrice
	rd.ClosePrice = &cp
	rd.UpdatedAt = time.Now().UTC()
	r.rounds[id] = rd
	r.mu.Unlock()

	// The status flip above is the exactly-once guard: only the caller that
	// won it reaches this write.
	if err := r.scores.ApplyScores(ctx, id, scored); err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *MemoryRepository) list(match func(models.Round) bool) ([]models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Round
	for id := range r.rounds {
		if rd := r.rounds[id]; match(rd) {
			out = append(out, rd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
