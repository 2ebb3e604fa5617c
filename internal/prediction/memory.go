package prediction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/predictoor/server/internal/models"
	"github.com/predictoor/server/internal/participant"
)

// RoundChecker reads the live round record so the gate can re-validate at
// write time.
type RoundChecker interface {
	GetRound(ctx context.Context, id int64) (*models.Round, error)
}

// RoundGuard is a RoundChecker whose round store can exclude status
// transitions while a callback runs. The in-memory round store implements it;
// the gate uses it to make the lock check atomic with the prediction write.
type RoundGuard interface {
	WithRound(ctx context.Context, id int64, fn func(models.Round) error) error
}

// MemoryRepository is an in-memory prediction store for local mode and tests.
// It also implements the score writer used by the in-memory round store at
// completion.
type MemoryRepository struct {
	mu           sync.RWMutex
	predictions  map[int64]map[uuid.UUID]models.Prediction
	rounds       RoundChecker
	participants participant.Repository
}

// NewMemoryRepository creates an empty in-memory prediction store. The round
// checker enforces the lock gate; the participant repository supplies display
// data for ranked reads.
func NewMemoryRepository(rounds RoundChecker, participants participant.Repository) *MemoryRepository {
	return &MemoryRepository{
		predictions:  make(map[int64]map[uuid.UUID]models.Prediction),
		rounds:       rounds,
		participants: participants,
	}
}

// SetRoundChecker wires the round store after construction. The memory round
// store and prediction store reference each other, so one side is attached
// late.
func (r *MemoryRepository) SetRoundChecker(rounds RoundChecker) {
	r.rounds = rounds
}

func (r *MemoryRepository) UpsertBeforeLock(ctx context.Context, pred models.Prediction, now time.Time) (*models.Prediction, error) {
	gate := func(rd models.Round) error {
		if !rd.AcceptsPredictions(now) {
			return ErrRoundNotActive
		}
		r.store(pred)
		return nil
	}

	var err error
	if guard, ok := r.rounds.(RoundGuard); ok {
		// Gate and write run while the round store excludes transitions, so
		// a lock landing concurrently cannot admit a late prediction.
		err = guard.WithRound(ctx, pred.RoundID, gate)
	} else {
		var rd *models.Round
		rd, err = r.rounds.GetRound(ctx, pred.RoundID)
		if err == nil {
			err = gate(*rd)
		}
	}
	if err != nil {
		return nil, ErrRoundNotActive
	}

	stored := pred
	stored.Accuracy = nil
	stored.Rank = nil
	return &stored, nil
}

func (r *MemoryRepository) store(pred models.Prediction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byParticipant, ok := r.predictions[pred.RoundID]
	if !ok {
		byParticipant = make(map[uuid.UUID]models.Prediction)
		r.predictions[pred.RoundID] = byParticipant
	}
	pred.Accuracy = nil
	pred.Rank = nil
	byParticipant[pred.ParticipantID] = pred
}

func (r *MemoryRepository) ListByRound(ctx context.Context, roundID int64) ([]models.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Prediction
	for _, pred := range r.predictions[roundID] {
		out = append(out, pred)
	}
	return out, nil
}

func (r *MemoryRepository) ListRanked(ctx context.Context, roundID int64, limit int) ([]models.Prediction, error) {
	preds, err := r.ListByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	sort.Slice(preds, func(i, j int) bool {
		ri, rj := preds[i].Rank, preds[j].Rank
		switch {
		case ri != nil && rj != nil:
			return *ri < *rj
		case ri != nil:
			return true
		case rj != nil:
			return false
		default:
			return preds[i].SubmittedAt.Before(preds[j].SubmittedAt)
		}
	})
	if limit > 0 && len(preds) > limit {
		preds = preds[:limit]
	}

	for i := range preds {
		p, err := r.participants.GetParticipant(ctx, preds[i].ParticipantID)
		if err != nil {
			continue
		}
		preds[i].Nickname = p.Nickname
		preds[i].AvatarColor = p.AvatarColor
	}
	return preds, nil
}

func (r *MemoryRepository) CountByRound(ctx context.Context, roundID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.predictions[roundID]), nil
}

// ApplyScores persists accuracy and rank onto the stored predictions. The
// round store calls this exactly once per round, from whichever scheduler won
// the completion transition.
func (r *MemoryRepository) ApplyScores(ctx context.Context, roundID int64, scored []models.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byParticipant := r.predictions[roundID]
	for _, s := range scored {
		pred, ok := byParticipant[s.ParticipantID]
		if !ok {
			return fmt.Errorf("scored prediction missing from store: round %d participant %s", roundID, s.ParticipantID)
		}
		pred.Accuracy = s.Accuracy
		pred.Rank = s.Rank
		byParticipant[s.ParticipantID] = pred
	}
	return nil
}
